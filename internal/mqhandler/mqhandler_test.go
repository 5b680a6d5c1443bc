package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contractsmq "vendordesk/contracts/mq"
	"vendordesk/internal/model"
	"vendordesk/internal/notifier"
	"vendordesk/internal/repository"
	"vendordesk/pkg/util"
)

type fakeSender struct {
	sent []notifier.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg notifier.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("provider-%d", len(f.sent)), nil
}

type fakeSessions struct {
	byID     map[int64]*model.ShipmentSession
	notified []int64
	// markErrs fail the next MarkNotified calls in order.
	markErrs []error
}

func (f *fakeSessions) GetByID(_ context.Context, id int64) (*model.ShipmentSession, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) MarkNotified(_ context.Context, sessionID, vendorID int64, at time.Time) (bool, error) {
	if len(f.markErrs) > 0 {
		err := f.markErrs[0]
		f.markErrs = f.markErrs[1:]
		return false, err
	}
	s := f.byID[sessionID]
	if !s.AssignedTo(vendorID) || s.VendorNotifiedAt != nil {
		return false, nil
	}
	s.VendorNotifiedAt = &at
	f.notified = append(f.notified, sessionID)
	return true, nil
}

type fakeVendors map[int64]model.Vendor

func (f fakeVendors) GetByID(_ context.Context, id int64) (*model.Vendor, error) {
	v, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

type fakeDeduper struct {
	seen map[string]bool
}

func (f *fakeDeduper) AcquireOnce(_ context.Context, handler, key string) bool {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	k := handler + ":" + key
	if f.seen[k] {
		return false
	}
	f.seen[k] = true
	return true
}

func (f *fakeDeduper) Release(_ context.Context, handler, key string) {
	delete(f.seen, handler+":"+key)
}

type fakeRetries struct {
	counts map[string]int64
	err    error
}

func (f *fakeRetries) IncrementAndGet(_ context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRetries) Reset(_ context.Context, key string) error {
	delete(f.counts, key)
	return nil
}

type deadLetter struct {
	routingKey string
	payload    []byte
	reason     string
}

type fakeDLQ struct {
	letters []deadLetter
	err     error
}

func (f *fakeDLQ) PublishToDLQ(_ context.Context, routingKey string, payload []byte, originalError, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.letters = append(f.letters, deadLetter{routingKey, payload, originalError})
	return nil
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func int64p(v int64) *int64 { return &v }

func TestVendorAssignedSendsAndMarksNotified(t *testing.T) {
	sessions := &fakeSessions{byID: map[int64]*model.ShipmentSession{
		5: {ID: 5, VendorID: int64p(2), PackageDescription: "boxes"},
	}}
	vendors := fakeVendors{2: {ID: 2, Name: "Sam Carrier", Email: "sam@carrier.test"}}
	sender := &fakeSender{}
	h := NewVendorAssignedHandler(sessions, vendors, sender, &fakeDeduper{}, zap.NewNop())

	err := h.HandleVendorAssigned(context.Background(), raw(t, contractsmq.VendorAssignedPayload{SessionID: 5, VendorID: 2}))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "sam@carrier.test", sender.sent[0].To)
	assert.Equal(t, "New Shipment Assignment - 5", sender.sent[0].Subject)
	assert.Equal(t, []int64{5}, sessions.notified)

	// redelivery after success does not email twice
	require.NoError(t, h.HandleVendorAssigned(context.Background(), raw(t, contractsmq.VendorAssignedPayload{SessionID: 5, VendorID: 2})))
	assert.Len(t, sender.sent, 1)
}

func TestVendorAssignedSkipsReassignedSession(t *testing.T) {
	sessions := &fakeSessions{byID: map[int64]*model.ShipmentSession{5: {ID: 5, VendorID: int64p(3)}}}
	sender := &fakeSender{}
	h := NewVendorAssignedHandler(sessions, fakeVendors{}, sender, &fakeDeduper{}, zap.NewNop())

	require.NoError(t, h.HandleVendorAssigned(context.Background(), raw(t, contractsmq.VendorAssignedPayload{SessionID: 5, VendorID: 2})))
	assert.Empty(t, sender.sent)
	assert.Empty(t, sessions.notified)
}

func TestVendorAssignedSendFailureIsRetryable(t *testing.T) {
	sessions := &fakeSessions{byID: map[int64]*model.ShipmentSession{5: {ID: 5, VendorID: int64p(2)}}}
	vendors := fakeVendors{2: {ID: 2, Email: "sam@carrier.test"}}
	sender := &fakeSender{err: errors.New("mail provider rejected message: 502")}
	h := NewVendorAssignedHandler(sessions, vendors, sender, &fakeDeduper{}, zap.NewNop())

	err := h.HandleVendorAssigned(context.Background(), raw(t, contractsmq.VendorAssignedPayload{SessionID: 5, VendorID: 2}))
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)
	assert.Empty(t, sessions.notified)

	sender.err = nil
	require.NoError(t, h.HandleVendorAssigned(context.Background(), raw(t, contractsmq.VendorAssignedPayload{SessionID: 5, VendorID: 2})))
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, []int64{5}, sessions.notified)
}

func TestVendorAssignedMarkFailureDoesNotResend(t *testing.T) {
	sessions := &fakeSessions{
		byID:     map[int64]*model.ShipmentSession{5: {ID: 5, VendorID: int64p(2)}},
		markErrs: []error{errors.New("connection reset by peer")},
	}
	vendors := fakeVendors{2: {ID: 2, Email: "sam@carrier.test"}}
	sender := &fakeSender{}
	h := NewVendorAssignedHandler(sessions, vendors, sender, &fakeDeduper{}, zap.NewNop())
	assigned := time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)
	payload := raw(t, contractsmq.VendorAssignedPayload{SessionID: 5, VendorID: 2, AssignedAt: assigned})

	err := h.HandleVendorAssigned(context.Background(), payload)
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)
	require.Len(t, sender.sent, 1)
	assert.Empty(t, sessions.notified)

	// redelivery records the notification without a second email
	require.NoError(t, h.HandleVendorAssigned(context.Background(), payload))
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, []int64{5}, sessions.notified)
}

func TestVendorAssignedNotifiesAgainOnNewAssignment(t *testing.T) {
	sessions := &fakeSessions{byID: map[int64]*model.ShipmentSession{5: {ID: 5, VendorID: int64p(2)}}}
	vendors := fakeVendors{2: {ID: 2, Email: "sam@carrier.test"}}
	sender := &fakeSender{}
	h := NewVendorAssignedHandler(sessions, vendors, sender, &fakeDeduper{}, zap.NewNop())
	first := time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)

	require.NoError(t, h.HandleVendorAssigned(context.Background(), raw(t, contractsmq.VendorAssignedPayload{SessionID: 5, VendorID: 2, AssignedAt: first})))

	// the same vendor assigned again after a reassignment cleared the timestamps
	sessions.byID[5].VendorNotifiedAt = nil
	require.NoError(t, h.HandleVendorAssigned(context.Background(), raw(t, contractsmq.VendorAssignedPayload{SessionID: 5, VendorID: 2, AssignedAt: first.Add(time.Hour)})))
	assert.Len(t, sender.sent, 2)
}

func TestVendorAssignedMissingSessionIsPermanent(t *testing.T) {
	h := NewVendorAssignedHandler(&fakeSessions{byID: map[int64]*model.ShipmentSession{}}, fakeVendors{}, &fakeSender{}, &fakeDeduper{}, zap.NewNop())

	err := h.HandleVendorAssigned(context.Background(), raw(t, contractsmq.VendorAssignedPayload{SessionID: 9, VendorID: 2}))
	require.Error(t, err)
	retryable, kind := util.IsRetryableError(err)
	assert.False(t, retryable)
	assert.Equal(t, "not_found", kind)
}

func TestReplyRequestedSendsOnce(t *testing.T) {
	sender := &fakeSender{}
	h := NewReplyRequestedHandler(sender, &fakeDeduper{}, zap.NewNop())
	payload := raw(t, contractsmq.ReplyRequestedPayload{
		ReplyID:   1,
		To:        "client@example.com",
		Subject:   "Pallet move",
		Body:      "Done.",
		MessageID: "<r1@desk>",
		InReplyTo: "<orig>",
	})

	require.NoError(t, h.HandleReplyRequested(context.Background(), payload))
	require.NoError(t, h.HandleReplyRequested(context.Background(), payload))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Re: Pallet move", sender.sent[0].Subject)
	assert.Equal(t, "<orig>", sender.sent[0].InReplyTo)
}

func TestReplyRequestedFailureReleasesDedupe(t *testing.T) {
	sender := &fakeSender{err: errors.New("mail provider rejected message: 500")}
	h := NewReplyRequestedHandler(sender, &fakeDeduper{}, zap.NewNop())
	payload := raw(t, contractsmq.ReplyRequestedPayload{To: "a@b.c", MessageID: "<r2>"})

	require.Error(t, h.HandleReplyRequested(context.Background(), payload))

	sender.err = nil
	require.NoError(t, h.HandleReplyRequested(context.Background(), payload))
	assert.Len(t, sender.sent, 1)
}

func TestGuardRetriesThenDeadLetters(t *testing.T) {
	retries := &fakeRetries{}
	dlq := &fakeDLQ{}
	g := NewGuard(retries, dlq, 2, zap.NewNop())
	failing := g.Wrap("email.received", func(context.Context, json.RawMessage) error {
		return errors.New("connection reset")
	})
	body := json.RawMessage(`{"message_id":"<x>"}`)

	assert.Error(t, failing(context.Background(), body))
	assert.Error(t, failing(context.Background(), body))
	assert.NoError(t, failing(context.Background(), body))

	require.Len(t, dlq.letters, 1)
	assert.Equal(t, "email.received", dlq.letters[0].routingKey)
	assert.Equal(t, "connection reset", dlq.letters[0].reason)
	assert.Empty(t, retries.counts)
}

func TestGuardDeadLettersPermanentErrorsImmediately(t *testing.T) {
	dlq := &fakeDLQ{}
	g := NewGuard(&fakeRetries{}, dlq, 5, zap.NewNop())
	h := g.Wrap("session.vendor_assigned", func(context.Context, json.RawMessage) error {
		return util.Permanent(errors.New("bad payload"), "json_decode_error")
	})

	assert.NoError(t, h(context.Background(), json.RawMessage(`{}`)))
	assert.Len(t, dlq.letters, 1)
}

func TestGuardNacksWhenDLQUnavailable(t *testing.T) {
	g := NewGuard(&fakeRetries{}, &fakeDLQ{err: errors.New("channel closed")}, 1, zap.NewNop())
	h := g.Wrap("k", func(context.Context, json.RawMessage) error {
		return util.Permanent(errors.New("bad"), "invalid_payload")
	})

	assert.Error(t, h(context.Background(), json.RawMessage(`{}`)))
}

func TestGuardSuccessResetsCounter(t *testing.T) {
	retries := &fakeRetries{}
	g := NewGuard(retries, &fakeDLQ{}, 3, zap.NewNop())
	calls := 0
	h := g.Wrap("k", func(context.Context, json.RawMessage) error {
		calls++
		if calls == 1 {
			return context.DeadlineExceeded
		}
		return nil
	})

	assert.Error(t, h(context.Background(), json.RawMessage(`{}`)))
	assert.Len(t, retries.counts, 1)
	assert.NoError(t, h(context.Background(), json.RawMessage(`{}`)))
	assert.Empty(t, retries.counts)
}
