package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendordesk/internal/model"
	"vendordesk/internal/stats"
)

type fakeSource struct {
	emails   []model.Email
	sessions []model.ShipmentSession
	vendors  []model.Vendor
	counters stats.Dashboard
	err      error
	tab      string
}

func (f *fakeSource) Emails(context.Context, int) ([]model.Email, error) {
	return f.emails, nil
}

func (f *fakeSource) Sessions(_ context.Context, tab string) ([]model.ShipmentSession, error) {
	f.tab = tab
	return f.sessions, nil
}

func (f *fakeSource) Vendors(context.Context) ([]model.Vendor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vendors, nil
}

func (f *fakeSource) Dashboard(context.Context) (stats.Dashboard, error) {
	return f.counters, nil
}

func fixture() *fakeSource {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	notified := base.Add(time.Hour)
	replied := base.Add(2 * time.Hour)
	vendorID := int64(7)

	return &fakeSource{
		emails: []model.Email{
			{ID: 1, ThreadID: "t-1", Subject: "Pallet to Leeds", ReceivedAt: model.NewTimestamp(base)},
			{ID: 2, ThreadID: "t-1", Subject: "Re: Pallet to Leeds", ReceivedAt: model.NewTimestamp(base.Add(time.Hour))},
			{ID: 3, Subject: "Quote?", ReceivedAt: model.NewTimestamp(base.Add(3 * time.Hour))},
		},
		sessions: []model.ShipmentSession{
			{ID: 10, Status: model.SessionIncomplete},
			{ID: 11, VendorID: &vendorID, VendorNotifiedAt: &notified, Status: model.SessionPending},
			{ID: 12, VendorID: &vendorID, VendorNotifiedAt: &notified, VendorRepliedAt: &replied, Status: model.SessionCompleted},
		},
		vendors:  []model.Vendor{{ID: vendorID, Name: "Acme Freight", Active: true}},
		counters: stats.Dashboard{TotalEmails: 4, ShippingRequests: 2},
	}
}

func TestBuild(t *testing.T) {
	src := fixture()
	totals := model.EmailTotals{Total: 4, ShippingRequests: 2}

	snap := Build(src.emails, src.sessions, src.vendors, totals)

	require.Len(t, snap.Threads, 2)
	assert.Equal(t, 3, snap.Counts.All)
	assert.Equal(t, 1, snap.Counts.Unassigned)
	assert.Equal(t, 1, snap.Counts.PendingReply)
	assert.Equal(t, 1, snap.Counts.Replied)
	assert.Equal(t, 50, snap.Summary.ProcessingRate)
	assert.Equal(t, 3, snap.Summary.TotalShipments)
	assert.Equal(t, 1, snap.Summary.CompleteShipments)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestFetch(t *testing.T) {
	src := fixture()

	snap, err := Fetch(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, "all", src.tab)
	assert.Equal(t, 4, snap.Summary.TotalEmails)
	assert.Equal(t, 2, snap.Summary.ShippingRequests)
	assert.Len(t, snap.Sessions, 3)
	assert.Equal(t, map[int64]string{7: "Acme Freight"}, snap.VendorNames())
}

func TestFetchFailsOnAnyCall(t *testing.T) {
	src := fixture()
	src.err = errors.New("503 service unavailable")

	_, err := Fetch(context.Background(), src)
	require.Error(t, err)
	assert.ErrorIs(t, err, src.err)
	assert.Contains(t, err.Error(), "fetch vendors")
}
