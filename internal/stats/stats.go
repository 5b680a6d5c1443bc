// Package stats reduces sessions, vendors and email counters into dashboard
// metrics. All percentages are whole numbers rounded half up, and zero when
// the denominator is zero.
package stats

import (
	"sort"
	"strings"

	"vendordesk/internal/model"
	"vendordesk/internal/status"
)

// FallbackServiceType labels sessions without a service type.
const FallbackServiceType = "Standard"

const topVendorLimit = 5

// Percent returns 100*part/total rounded half up, or 0 when total <= 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}

func CompletionRate(sessions []model.ShipmentSession) int {
	return Percent(countComplete(sessions), len(sessions))
}

func ProcessingRate(totals model.EmailTotals) int {
	return Percent(totals.ShippingRequests, totals.Total)
}

// ResponseRate is replied sessions over sessions that reached a vendor
// (notified or replied).
func ResponseRate(sessions []model.ShipmentSession) int {
	contacted, replied := 0, 0
	for _, s := range sessions {
		if !s.HasVendor() {
			continue
		}
		if s.VendorRepliedAt != nil {
			replied++
			contacted++
		} else if s.VendorNotifiedAt != nil {
			contacted++
		}
	}
	return Percent(replied, contacted)
}

func countComplete(sessions []model.ShipmentSession) int {
	n := 0
	for _, s := range sessions {
		if s.Status.IsComplete() {
			n++
		}
	}
	return n
}

type VendorStats struct {
	VendorID        int64  `json:"vendorId"`
	Name            string `json:"name"`
	Company         string `json:"company,omitempty"`
	Active          bool   `json:"active"`
	TotalSessions   int    `json:"totalSessions"`
	RepliedSessions int    `json:"repliedSessions"`
	PendingSessions int    `json:"pendingSessions"`
	ResponseRate    int    `json:"responseRate"`
}

// PerVendor returns one row per vendor, most sessions first. Ties keep the
// order vendors were given in.
func PerVendor(vendors []model.Vendor, sessions []model.ShipmentSession) []VendorStats {
	type tally struct{ total, replied, pending int }
	byVendor := make(map[int64]*tally, len(vendors))
	for _, v := range vendors {
		byVendor[v.ID] = &tally{}
	}

	for _, s := range sessions {
		if s.VendorID == nil {
			continue
		}
		t, ok := byVendor[*s.VendorID]
		if !ok {
			continue
		}
		t.total++
		switch {
		case s.VendorRepliedAt != nil:
			t.replied++
		case s.VendorNotifiedAt != nil:
			t.pending++
		}
	}

	out := make([]VendorStats, 0, len(vendors))
	for _, v := range vendors {
		t := byVendor[v.ID]
		out = append(out, VendorStats{
			VendorID:        v.ID,
			Name:            v.Name,
			Company:         v.Company,
			Active:          v.Active,
			TotalSessions:   t.total,
			RepliedSessions: t.replied,
			PendingSessions: t.pending,
			ResponseRate:    Percent(t.replied, t.total),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalSessions > out[j].TotalSessions
	})
	return out
}

// TopVendors returns up to n ranked vendors that have at least one session.
func TopVendors(ranked []VendorStats, n int) []VendorStats {
	out := make([]VendorStats, 0, n)
	for _, v := range ranked {
		if len(out) == n {
			break
		}
		if v.TotalSessions > 0 {
			out = append(out, v)
		}
	}
	return out
}

type CategoryCount struct {
	Label      string `json:"label"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// CategoryBreakdown groups sessions by service type, largest group first.
// Ties keep first-appearance order. Percentages are rounded independently
// and need not sum to 100.
func CategoryBreakdown(sessions []model.ShipmentSession) []CategoryCount {
	out := make([]CategoryCount, 0)
	index := make(map[string]int)
	for _, s := range sessions {
		label := strings.TrimSpace(s.ServiceType)
		if label == "" {
			label = FallbackServiceType
		}
		i, ok := index[label]
		if !ok {
			i = len(out)
			index[label] = i
			out = append(out, CategoryCount{Label: label})
		}
		out[i].Count++
	}

	for i := range out {
		out[i].Percentage = Percent(out[i].Count, len(sessions))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// Dashboard holds the headline counters.
type Dashboard struct {
	TotalEmails         int `json:"totalEmails"`
	ShippingRequests    int `json:"shippingRequests"`
	TotalShipments      int `json:"totalShipments"`
	CompleteShipments   int `json:"completeShipments"`
	IncompleteShipments int `json:"incompleteShipments"`
}

func DashboardCounters(sessions []model.ShipmentSession, totals model.EmailTotals) Dashboard {
	complete := countComplete(sessions)
	return Dashboard{
		TotalEmails:         totals.Total,
		ShippingRequests:    totals.ShippingRequests,
		TotalShipments:      len(sessions),
		CompleteShipments:   complete,
		IncompleteShipments: len(sessions) - complete,
	}
}

type Summary struct {
	Dashboard
	CompletionRate    int                 `json:"completionRate"`
	ProcessingRate    int                 `json:"processingRate"`
	ResponseRate      int                 `json:"responseRate"`
	ActiveVendors     int                 `json:"activeVendors"`
	Counts            status.FilterCounts `json:"counts"`
	Vendors           []VendorStats       `json:"vendors"`
	TopVendors        []VendorStats       `json:"topVendors"`
	CategoryBreakdown []CategoryCount     `json:"categoryBreakdown"`
}

func Compute(sessions []model.ShipmentSession, vendors []model.Vendor, totals model.EmailTotals) Summary {
	perVendor := PerVendor(vendors, sessions)
	active := 0
	for _, v := range vendors {
		if v.Active {
			active++
		}
	}
	return Summary{
		Dashboard:         DashboardCounters(sessions, totals),
		CompletionRate:    CompletionRate(sessions),
		ProcessingRate:    ProcessingRate(totals),
		ResponseRate:      ResponseRate(sessions),
		ActiveVendors:     active,
		Counts:            status.Counts(sessions),
		Vendors:           perVendor,
		TopVendors:        TopVendors(perVendor, topVendorLimit),
		CategoryBreakdown: CategoryBreakdown(sessions),
	}
}
