package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vendordesk/internal/model"
	"vendordesk/internal/repository"
)

type VendorHandler struct {
	vendors VendorStore
	stats   StatsProvider
	logger  *zap.Logger
}

func NewVendorHandler(vendors VendorStore, stats StatsProvider, logger *zap.Logger) *VendorHandler {
	return &VendorHandler{vendors: vendors, stats: stats, logger: logger}
}

func vendorTypeParam(c *gin.Context) (model.VendorType, bool) {
	t := model.VendorType(c.Query("vendor_type"))
	if t != "" && !t.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor_type"})
		return "", false
	}
	return t, true
}

func (h *VendorHandler) ListVendors(c *gin.Context) {
	t, ok := vendorTypeParam(c)
	if !ok {
		return
	}
	active, err := queryBool(c, "active")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active"})
		return
	}
	vendors, err := h.vendors.List(c.Request.Context(), repository.VendorFilter{Type: t, Active: active})
	if err != nil {
		respondError(c, h.logger, "ListVendors", err)
		return
	}
	c.JSON(http.StatusOK, vendors)
}

func (h *VendorHandler) SearchVendors(c *gin.Context) {
	t, ok := vendorTypeParam(c)
	if !ok {
		return
	}
	vendors, err := h.vendors.Search(c.Request.Context(), strings.TrimSpace(c.Query("q")), t)
	if err != nil {
		respondError(c, h.logger, "SearchVendors", err)
		return
	}
	c.JSON(http.StatusOK, vendors)
}

func (h *VendorHandler) VendorStats(c *gin.Context) {
	rows, err := h.stats.VendorStats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "VendorStats", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *VendorHandler) GetVendor(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id")
	if !ok {
		return
	}
	v, err := h.vendors.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "GetVendor", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type vendorRequest struct {
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Phone       string           `json:"phone"`
	Company     string           `json:"company"`
	Address     string           `json:"address"`
	VendorType  model.VendorType `json:"vendorType"`
	Rating      *int             `json:"rating"`
	Description string           `json:"description"`
	Active      *bool            `json:"active"`
}

func validRating(r *int) bool {
	return r == nil || (*r >= 1 && *r <= 5)
}

func (h *VendorHandler) CreateVendor(c *gin.Context) {
	var req vendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and email are required"})
		return
	}
	if req.VendorType == "" {
		req.VendorType = model.VendorShipping
	}
	if !req.VendorType.Valid() || !validRating(req.Rating) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendorType or rating"})
		return
	}

	v := &model.Vendor{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Company:     req.Company,
		Address:     req.Address,
		VendorType:  req.VendorType,
		Rating:      req.Rating,
		Description: req.Description,
		Active:      req.Active == nil || *req.Active,
	}
	if err := h.vendors.Create(c.Request.Context(), v); err != nil {
		respondError(c, h.logger, "CreateVendor", err)
		return
	}
	h.logger.Info("CreateVendor: success", zap.Int64("vendor_id", v.ID))
	c.JSON(http.StatusCreated, v)
}

func (h *VendorHandler) UpdateVendor(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id")
	if !ok {
		return
	}
	var patch model.VendorPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if (patch.VendorType != nil && !patch.VendorType.Valid()) || !validRating(patch.Rating) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendorType or rating"})
		return
	}
	v, err := h.vendors.Update(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, h.logger, "UpdateVendor", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *VendorHandler) DeleteVendor(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id")
	if !ok {
		return
	}
	if err := h.vendors.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "DeleteVendor", err)
		return
	}
	h.logger.Info("DeleteVendor: success", zap.Int64("vendor_id", id))
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Vendor deleted"})
}
