package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vendordesk/internal/model"
)

func statsFixture() (*fakeEmails, *fakeSessions, *fakeVendors) {
	now := time.Now()
	emails := newFakeEmails()
	emails.totals = model.EmailTotals{Total: 8, ShippingRequests: 4}
	sessions := newFakeSessions(
		model.ShipmentSession{ID: 1, Status: model.SessionComplete, VendorID: int64p(1), VendorNotifiedAt: &now, VendorRepliedAt: &now, ServiceType: "Express"},
		model.ShipmentSession{ID: 2, Status: model.SessionIncomplete, VendorID: int64p(1), VendorNotifiedAt: &now},
		model.ShipmentSession{ID: 3, Status: model.SessionIncomplete},
	)
	vendors := newFakeVendors(
		model.Vendor{ID: 1, Name: "Fast Freight", Active: true},
		model.Vendor{ID: 2, Name: "Idle Co"},
	)
	return emails, sessions, vendors
}

func TestStatsSummary(t *testing.T) {
	emails, sessions, vendors := statsFixture()
	svc := NewStatsService(emails, sessions, vendors, nil, 0, zap.NewNop())

	got, err := svc.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, got.TotalShipments)
	assert.Equal(t, 1, got.CompleteShipments)
	assert.Equal(t, 33, got.CompletionRate)
	assert.Equal(t, 50, got.ProcessingRate)
	assert.Equal(t, 50, got.ResponseRate)
	assert.Equal(t, 1, got.ActiveVendors)
	require.Len(t, got.TopVendors, 1)
	assert.Equal(t, int64(1), got.TopVendors[0].VendorID)
}

func TestStatsSummaryUsesCache(t *testing.T) {
	emails, sessions, vendors := statsFixture()
	cache := &fakeCache{}
	svc := NewStatsService(emails, sessions, vendors, cache, time.Minute, zap.NewNop())

	first, err := svc.Summary(context.Background())
	require.NoError(t, err)
	second, err := svc.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sessions.lists)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, first.Dashboard, second.Dashboard)
	assert.Equal(t, first.Counts, second.Counts)
}

func TestStatsSummaryCacheFailureFallsThrough(t *testing.T) {
	emails, sessions, vendors := statsFixture()
	svc := NewStatsService(emails, sessions, vendors, &fakeCache{getErr: errCacheDown}, 0, zap.NewNop())

	got, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalShipments)
}

func TestStatsDashboardAndVendorStats(t *testing.T) {
	emails, sessions, vendors := statsFixture()
	svc := NewStatsService(emails, sessions, vendors, nil, 0, zap.NewNop())

	d, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, d.TotalEmails)
	assert.Equal(t, 2, d.IncompleteShipments)

	vs, err := svc.VendorStats(context.Background())
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, 2, vs[0].TotalSessions)
	assert.Equal(t, 1, vs[0].PendingSessions)
	assert.Equal(t, 0, vs[1].TotalSessions)
}
