package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"vendordesk/internal/model"
)

type VendorFilter struct {
	Type   model.VendorType
	Active *bool
}

type VendorRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewVendorRepository(db *pgxpool.Pool, logger *zap.Logger) *VendorRepository {
	return &VendorRepository{db: db, logger: logger}
}

const vendorColumns = `id, name, email, phone, company, address, vendor_type, rating,
	description, active, created_at, updated_at`

func scanVendor(row scanner) (model.Vendor, error) {
	var v model.Vendor
	err := row.Scan(
		&v.ID,
		&v.Name,
		&v.Email,
		&v.Phone,
		&v.Company,
		&v.Address,
		&v.VendorType,
		&v.Rating,
		&v.Description,
		&v.Active,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	return v, err
}

func (r *VendorRepository) query(ctx context.Context, query string, args ...any) ([]model.Vendor, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query vendors", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	vendors := []model.Vendor{}
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

// List returns vendors ordered by id, which is the tie-break order of vendor rankings.
func (r *VendorRepository) List(ctx context.Context, f VendorFilter) ([]model.Vendor, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("vendor_type = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	query := `SELECT ` + vendorColumns + ` FROM vendors`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	return r.query(ctx, query+` ORDER BY id ASC`, args...)
}

// Search matches q against name, company and email, case-insensitively.
func (r *VendorRepository) Search(ctx context.Context, q string, vendorType model.VendorType) ([]model.Vendor, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(q)) + "%"
	args := []any{pattern}
	query := `SELECT ` + vendorColumns + ` FROM vendors
		WHERE (name ILIKE $1 OR company ILIKE $1 OR email ILIKE $1)`
	if vendorType != "" {
		args = append(args, vendorType)
		query += ` AND vendor_type = $2`
	}
	return r.query(ctx, query+` ORDER BY name ASC, id ASC LIMIT 100`, args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *VendorRepository) GetByID(ctx context.Context, id int64) (*model.Vendor, error) {
	v, err := scanVendor(r.db.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}

// GetByEmail matches the address case-insensitively.
func (r *VendorRepository) GetByEmail(ctx context.Context, email string) (*model.Vendor, error) {
	v, err := scanVendor(r.db.QueryRow(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE LOWER(email) = LOWER($1)`,
		strings.TrimSpace(email),
	))
	if err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}

func (r *VendorRepository) Create(ctx context.Context, v *model.Vendor) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO vendors (name, email, phone, company, address, vendor_type, rating, description, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`,
		v.Name, v.Email, v.Phone, v.Company, v.Address, v.VendorType, v.Rating, v.Description, v.Active,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create vendor", zap.String("email", v.Email), zap.Error(err))
		return mapErr(err)
	}
	r.logger.Info("Vendor created", zap.Int64("vendor_id", v.ID))
	return nil
}

// Update applies patch under a row lock and returns the stored vendor.
func (r *VendorRepository) Update(ctx context.Context, id int64, patch model.VendorPatch) (*model.Vendor, error) {
	var out model.Vendor
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		v, err := scanVendor(tx.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		patch.Apply(&v)
		out, err = scanVendor(tx.QueryRow(ctx, `
			UPDATE vendors
			SET name = $2, email = $3, phone = $4, company = $5, address = $6,
			    vendor_type = $7, rating = $8, description = $9, active = $10, updated_at = NOW()
			WHERE id = $1
			RETURNING `+vendorColumns,
			id, v.Name, v.Email, v.Phone, v.Company, v.Address, v.VendorType, v.Rating, v.Description, v.Active,
		))
		return err
	})
	if err != nil {
		r.logger.Error("Failed to update vendor", zap.Int64("vendor_id", id), zap.Error(err))
		return nil, mapErr(err)
	}
	return &out, nil
}

func (r *VendorRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM vendors WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete vendor", zap.Int64("vendor_id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.logger.Info("Vendor deleted", zap.Int64("vendor_id", id))
	return nil
}
