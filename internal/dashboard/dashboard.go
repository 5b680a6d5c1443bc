// Package dashboard assembles the operator view the CLI renders: threads,
// session tab counters and the vendor summary, all derived from one fetch.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"vendordesk/internal/model"
	"vendordesk/internal/stats"
	"vendordesk/internal/status"
	"vendordesk/internal/thread"
)

const emailWindow = 200

type Snapshot struct {
	Threads   []thread.Thread         `json:"threads"`
	Sessions  []model.ShipmentSession `json:"sessions"`
	Counts    status.FilterCounts     `json:"counts"`
	Summary   stats.Summary           `json:"summary"`
	FetchedAt time.Time               `json:"fetchedAt"`
}

// Source is the read side of the API.
type Source interface {
	Emails(ctx context.Context, limit int) ([]model.Email, error)
	Sessions(ctx context.Context, tab string) ([]model.ShipmentSession, error)
	Vendors(ctx context.Context) ([]model.Vendor, error)
	Dashboard(ctx context.Context) (stats.Dashboard, error)
}

// Build derives a snapshot from raw records. The inputs are not modified.
func Build(emails []model.Email, sessions []model.ShipmentSession, vendors []model.Vendor, totals model.EmailTotals) Snapshot {
	return Snapshot{
		Threads:   thread.Assemble(emails),
		Sessions:  sessions,
		Counts:    status.Counts(sessions),
		Summary:   stats.Compute(sessions, vendors, totals),
		FetchedAt: time.Now(),
	}
}

// Fetch loads everything in parallel. Any failed call fails the snapshot.
func Fetch(ctx context.Context, src Source) (Snapshot, error) {
	var (
		emails   []model.Email
		sessions []model.ShipmentSession
		vendors  []model.Vendor
		counters stats.Dashboard
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		emails, err = src.Emails(ctx, emailWindow)
		return wrap("emails", err)
	})
	g.Go(func() (err error) {
		sessions, err = src.Sessions(ctx, string(status.TabAll))
		return wrap("sessions", err)
	})
	g.Go(func() (err error) {
		vendors, err = src.Vendors(ctx)
		return wrap("vendors", err)
	})
	g.Go(func() (err error) {
		counters, err = src.Dashboard(ctx)
		return wrap("dashboard", err)
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	totals := model.EmailTotals{Total: counters.TotalEmails, ShippingRequests: counters.ShippingRequests}
	return Build(emails, sessions, vendors, totals), nil
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("fetch %s: %w", what, err)
}

// VendorNames indexes vendor names by id for table rendering.
func (s Snapshot) VendorNames() map[int64]string {
	names := make(map[int64]string, len(s.Summary.Vendors))
	for _, v := range s.Summary.Vendors {
		names[v.VendorID] = v.Name
	}
	return names
}
