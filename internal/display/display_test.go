package display

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vendordesk/internal/model"
	"vendordesk/internal/stats"
	"vendordesk/internal/status"
	"vendordesk/internal/thread"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "hello w...", Truncate("hello world again", 10))
	assert.Equal(t, "a b", Truncate("a\n  b", 10))
	assert.Equal(t, "héllo...", Truncate("héllo wörld", 8))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	p := NewPrinter(&bytes.Buffer{}, false)
	p.now = func() time.Time { return now }

	assert.Equal(t, "-", p.TimeAgo(time.Time{}))
	assert.Equal(t, "just now", p.TimeAgo(now.Add(-10*time.Second)))
	assert.Equal(t, "5m ago", p.TimeAgo(now.Add(-5*time.Minute)))
	assert.Equal(t, "3h ago", p.TimeAgo(now.Add(-3*time.Hour)))
	assert.Equal(t, "2d ago", p.TimeAgo(now.Add(-50*time.Hour)))
	assert.Equal(t, "Apr 1", p.TimeAgo(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSessionsPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)
	v := int64(2)
	now := time.Now()

	p.Sessions([]model.ShipmentSession{
		{ID: 1, Subject: "Pallets"},
		{ID: 2, VendorID: &v, VendorNotifiedAt: &now, ServiceType: "Express"},
	}, map[int64]string{2: "Fast Freight"})

	out := buf.String()
	assert.Contains(t, out, "#1")
	assert.Contains(t, out, "Action required")
	assert.Contains(t, out, "Standard")
	assert.Contains(t, out, "Awaiting vendor")
	assert.Contains(t, out, "Fast Freight")
	assert.NotContains(t, out, "\x1b[")
}

func TestThreadsAndSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	p.Threads(nil)
	assert.Contains(t, buf.String(), "No threads.")

	buf.Reset()
	threads := thread.Assemble([]model.Email{{
		ID: 1, ThreadID: "t", Subject: "Need a truck", SenderEmail: "a@b.c", Body: "hi",
		Responses: []model.EmailReply{{ID: 2, Body: "sure"}},
	}})
	p.Threads(threads)
	assert.Contains(t, buf.String(), "Need a truck")
	assert.Contains(t, buf.String(), "operator")

	buf.Reset()
	p.Summary(stats.Summary{
		Dashboard:  stats.Dashboard{TotalEmails: 10, ShippingRequests: 4},
		Counts:     status.FilterCounts{All: 3, Unassigned: 1},
		TopVendors: []stats.VendorStats{{Name: "Fast Freight", TotalSessions: 2}},
	})
	assert.Contains(t, buf.String(), "Top vendors")
	assert.Contains(t, buf.String(), "Fast Freight")
}
