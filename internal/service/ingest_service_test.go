package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contractsmq "vendordesk/contracts/mq"
	"vendordesk/internal/model"
	"vendordesk/pkg/util"
)

func mustPayload(t *testing.T, p contractsmq.EmailReceivedPayload) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return b
}

// newIngest wires the fakes to one rolling-back transaction runner.
func newIngest(emails *fakeEmails, sessions *fakeSessions, vendors *fakeVendors, dedupe *fakeDeduper) (*IngestService, *fakeTx) {
	tx := &fakeTx{}
	emails.tx, sessions.tx = tx, tx
	return NewIngestService(emails, sessions, vendors, tx, dedupe, zap.NewNop()), tx
}

func TestHandleEmailReceivedStoresEmail(t *testing.T) {
	emails := newFakeEmails()
	svc, _ := newIngest(emails, newFakeSessions(), newFakeVendors(), newFakeDeduper())

	received := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	err := svc.HandleEmailReceived(context.Background(), mustPayload(t, contractsmq.EmailReceivedPayload{
		MessageID:         "<m1@client>",
		ThreadID:          " t-1 ",
		SenderEmail:       "client@example.com",
		Subject:           "Need a pickup",
		Category:          "shipping_request",
		IsShippingRequest: true,
		ReceivedAt:        received,
	}))
	require.NoError(t, err)

	stored, err := emails.GetByMessageID(context.Background(), "<m1@client>")
	require.NoError(t, err)
	assert.Equal(t, "t-1", stored.ThreadID)
	assert.Equal(t, model.CategoryShippingRequest, stored.Category)
	assert.Equal(t, model.EmailUnprocessed, stored.Status)
	assert.True(t, stored.ReceivedAt.Equal(received))
}

func TestHandleEmailReceivedUnknownCategoryFallsBackToOther(t *testing.T) {
	emails := newFakeEmails()
	svc, _ := newIngest(emails, newFakeSessions(), newFakeVendors(), newFakeDeduper())

	require.NoError(t, svc.HandleEmailReceived(context.Background(), mustPayload(t, contractsmq.EmailReceivedPayload{
		MessageID: "<m2>",
		Category:  "newsletter",
	})))

	stored, err := emails.GetByMessageID(context.Background(), "<m2>")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryOther, stored.Category)
}

func TestHandleEmailReceivedVendorReply(t *testing.T) {
	notified := time.Now().Add(-2 * time.Hour)
	sessions := newFakeSessions(model.ShipmentSession{ID: 11, VendorID: int64p(4), VendorNotifiedAt: &notified})
	vendors := newFakeVendors(model.Vendor{ID: 4, Email: "Ops@Haulers.test", Active: true})
	emails := newFakeEmails()
	svc, _ := newIngest(emails, sessions, vendors, newFakeDeduper())

	err := svc.HandleEmailReceived(context.Background(), mustPayload(t, contractsmq.EmailReceivedPayload{
		MessageID:         "<vendor-reply>",
		SenderEmail:       "ops@haulers.test",
		Body:              "We can take it.",
		Category:          "shipping_request",
		IsShippingRequest: true,
		IsReply:           true,
	}))
	require.NoError(t, err)

	assert.Equal(t, []int64{11}, sessions.replied)
	s := sessions.byID[11]
	require.NotNil(t, s.VendorRepliedAt)
	assert.Equal(t, "<vendor-reply>", s.VendorReplyMessageID)
	assert.Equal(t, "We can take it.", s.VendorReplyContent)

	stored, err := emails.GetByMessageID(context.Background(), "<vendor-reply>")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryOther, stored.Category)
	assert.Equal(t, model.EmailCompleted, stored.Status)
	assert.False(t, stored.IsShippingRequest)
	assert.True(t, stored.IsReply)
	assert.Empty(t, sessions.created)
}

func TestHandleEmailReceivedVendorWithNothingPending(t *testing.T) {
	vendors := newFakeVendors(model.Vendor{ID: 4, Email: "ops@haulers.test"})
	emails := newFakeEmails()
	sessions := newFakeSessions()
	svc, _ := newIngest(emails, sessions, vendors, newFakeDeduper())

	require.NoError(t, svc.HandleEmailReceived(context.Background(), mustPayload(t, contractsmq.EmailReceivedPayload{
		MessageID:   "<hello>",
		SenderEmail: "ops@haulers.test",
		Category:    "query",
	})))

	assert.Empty(t, sessions.replied)
	stored, err := emails.GetByMessageID(context.Background(), "<hello>")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryQuery, stored.Category)
}

func TestHandleEmailReceivedIsIdempotent(t *testing.T) {
	notified := time.Now()
	sessions := newFakeSessions(
		model.ShipmentSession{ID: 1, VendorID: int64p(4), VendorNotifiedAt: &notified},
	)
	vendors := newFakeVendors(model.Vendor{ID: 4, Email: "ops@haulers.test"})
	emails := newFakeEmails()
	dedupe := newFakeDeduper()
	svc, _ := newIngest(emails, sessions, vendors, dedupe)

	raw := mustPayload(t, contractsmq.EmailReceivedPayload{MessageID: "<dup>", SenderEmail: "ops@haulers.test"})
	require.NoError(t, svc.HandleEmailReceived(context.Background(), raw))

	// simulate an expired dedupe key and a second awaiting session
	delete(dedupe.seen, ingestHandlerName+":<dup>")
	sessions.byID[2] = &model.ShipmentSession{ID: 2, VendorID: int64p(4), VendorNotifiedAt: &notified}

	require.NoError(t, svc.HandleEmailReceived(context.Background(), raw))
	assert.Equal(t, []int64{1}, sessions.replied)
	assert.Len(t, emails.byID, 1)
}

func TestHandleEmailReceivedRejectsBadPayload(t *testing.T) {
	svc, _ := newIngest(newFakeEmails(), newFakeSessions(), newFakeVendors(), newFakeDeduper())

	err := svc.HandleEmailReceived(context.Background(), json.RawMessage(`{"message_id":`))
	require.Error(t, err)
	retryable, kind := util.IsRetryableError(err)
	assert.False(t, retryable)
	assert.Equal(t, "json_decode_error", kind)

	err = svc.HandleEmailReceived(context.Background(), json.RawMessage(`{"subject":"no id"}`))
	require.Error(t, err)
	retryable, _ = util.IsRetryableError(err)
	assert.False(t, retryable)
}

func TestHandleEmailReceivedReleasesDedupeOnFailure(t *testing.T) {
	emails := newFakeEmails()
	emails.err = errors.New("connection refused")
	dedupe := newFakeDeduper()
	svc, _ := newIngest(emails, newFakeSessions(), newFakeVendors(), dedupe)

	err := svc.HandleEmailReceived(context.Background(), mustPayload(t, contractsmq.EmailReceivedPayload{MessageID: "<m>"}))
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)
	assert.Equal(t, []string{ingestHandlerName + ":<m>"}, dedupe.released)
}

func TestHandleEmailReceivedRedeliveryAfterFailedInsertRepliesOnce(t *testing.T) {
	older := time.Now().Add(-3 * time.Hour)
	newer := time.Now().Add(-1 * time.Hour)
	sessions := newFakeSessions(
		model.ShipmentSession{ID: 1, VendorID: int64p(7), VendorNotifiedAt: &older},
		model.ShipmentSession{ID: 2, VendorID: int64p(7), VendorNotifiedAt: &newer},
	)
	vendors := newFakeVendors(model.Vendor{ID: 7, Email: "desk@carrier.test"})
	emails := newFakeEmails()
	emails.insertErrs = []error{errors.New("connection reset")}
	svc, _ := newIngest(emails, sessions, vendors, newFakeDeduper())
	raw := mustPayload(t, contractsmq.EmailReceivedPayload{MessageID: "<r1>", SenderEmail: "desk@carrier.test", Body: "Booked."})

	err := svc.HandleEmailReceived(context.Background(), raw)
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)
	assert.Empty(t, sessions.replied)

	require.NoError(t, svc.HandleEmailReceived(context.Background(), raw))
	assert.Equal(t, []int64{2}, sessions.replied)
	assert.Nil(t, sessions.byID[1].VendorRepliedAt)
	assert.Len(t, emails.byID, 1)
}

func TestHandleEmailReceivedSessionWriteFailureRollsBackEmail(t *testing.T) {
	notified := time.Now().Add(-time.Hour)
	sessions := newFakeSessions(model.ShipmentSession{ID: 2, VendorID: int64p(7), VendorNotifiedAt: &notified})
	sessions.writeErrs = []error{errors.New("connection reset")}
	vendors := newFakeVendors(model.Vendor{ID: 7, Email: "desk@carrier.test"})
	emails := newFakeEmails()
	svc, tx := newIngest(emails, sessions, vendors, newFakeDeduper())
	raw := mustPayload(t, contractsmq.EmailReceivedPayload{MessageID: "<r2>", SenderEmail: "desk@carrier.test"})

	require.Error(t, svc.HandleEmailReceived(context.Background(), raw))
	assert.Equal(t, 1, tx.rollbacks)
	assert.Empty(t, emails.byID)

	require.NoError(t, svc.HandleEmailReceived(context.Background(), raw))
	assert.Equal(t, []int64{2}, sessions.replied)
	assert.Len(t, emails.byID, 1)
}

func TestHandleEmailReceivedOpensSessionForShippingRequest(t *testing.T) {
	emails := newFakeEmails()
	sessions := newFakeSessions()
	svc, _ := newIngest(emails, sessions, newFakeVendors(), newFakeDeduper())

	require.NoError(t, svc.HandleEmailReceived(context.Background(), mustPayload(t, contractsmq.EmailReceivedPayload{
		MessageID:   "<req-1>",
		ThreadID:    "t-7",
		SenderEmail: "ana@shop.test",
		SenderName:  "Ana Ruiz",
		Subject:     "Pickup next week",
		Body:        "Pickup address: 12 Dock Rd\nPickup city: Leeds\nRecipient name: Bo Chen\n",
		Category:    "shipping_request",
	})))

	require.Len(t, sessions.created, 1)
	s := sessions.byID[sessions.created[0]]
	stored, err := emails.GetByMessageID(context.Background(), "<req-1>")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, s.EmailID)
	assert.Equal(t, "t-7", s.ThreadID)
	assert.Equal(t, "Pickup next week", s.Subject)
	assert.Equal(t, "Ana Ruiz", s.SenderName)
	assert.Equal(t, "12 Dock Rd", s.SenderAddress)
	assert.Equal(t, model.SessionIncomplete, s.Status)
	assert.Equal(t, []string{"recipient_address", "recipient_city", "package_description"}, s.MissingFields)
	assert.Equal(t, "Leeds", sessions.extracted[s.ID]["sender_city"])
	assert.Nil(t, s.CompletedAt)
}

func TestHandleEmailReceivedCompleteRequestOpensCompleteSession(t *testing.T) {
	sessions := newFakeSessions()
	svc, _ := newIngest(newFakeEmails(), sessions, newFakeVendors(), newFakeDeduper())

	require.NoError(t, svc.HandleEmailReceived(context.Background(), mustPayload(t, contractsmq.EmailReceivedPayload{
		MessageID: "<req-2>",
		Body: "Sender name: Ana\nSender address: 12 Dock Rd\nSender city: Leeds\n" +
			"Recipient name: Bo\nRecipient address: 4 Elm St\nRecipient city: York\nPackage description: tiles\n",
		IsShippingRequest: true,
		Category:          "other",
	})))

	require.Len(t, sessions.created, 1)
	s := sessions.byID[sessions.created[0]]
	assert.Equal(t, model.SessionComplete, s.Status)
	assert.Empty(t, s.MissingFields)
	assert.NotNil(t, s.CompletedAt)
}

func TestHandleEmailReceivedMissingInfoReplyByThread(t *testing.T) {
	sessions := newFakeSessions(model.ShipmentSession{
		ID:            40,
		EmailID:       1,
		ThreadID:      "t-9",
		Subject:       "Pallet move",
		Status:        model.SessionIncomplete,
		SenderName:    "Ana",
		SenderAddress: "12 Dock Rd",
		SenderCity:    "Leeds",
		MissingFields: []string{"recipient_name", "recipient_address", "recipient_city", "package_description"},
	})
	emails := newFakeEmails()
	svc, _ := newIngest(emails, sessions, newFakeVendors(), newFakeDeduper())

	require.NoError(t, svc.HandleEmailReceived(context.Background(), mustPayload(t, contractsmq.EmailReceivedPayload{
		MessageID: "<follow-up>",
		ThreadID:  "t-9",
		Subject:   "Re: Pallet move",
		Body:      "Sender name: Someone Else\nRecipient name: Bo\nDelivery address: 4 Elm St\nDelivery city: York\nDescription: tiles",
		Category:  "query",
		IsReply:   true,
	})))

	assert.Empty(t, sessions.created)
	s := sessions.byID[40]
	assert.Equal(t, "Ana", s.SenderName)
	assert.Equal(t, "Bo", s.RecipientName)
	assert.Equal(t, "tiles", s.PackageDescription)
	assert.Equal(t, model.SessionComplete, s.Status)
	assert.Empty(t, s.MissingFields)
	assert.NotNil(t, s.MissingInfoUpdatedAt)
	assert.NotNil(t, s.CompletedAt)

	stored, err := emails.GetByMessageID(context.Background(), "<follow-up>")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryShippingRequest, stored.Category)
	assert.True(t, stored.IsShippingRequest)
	assert.Equal(t, model.EmailCompleted, stored.Status)
}

func TestHandleEmailReceivedMissingInfoReplyBySubject(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	sessions := newFakeSessions(
		model.ShipmentSession{ID: 50, Subject: "Crate to York", Status: model.SessionIncomplete, CreatedAt: created.Add(-time.Hour)},
		model.ShipmentSession{ID: 51, Subject: "Crate to York", Status: model.SessionIncomplete, CreatedAt: created},
		model.ShipmentSession{ID: 52, Subject: "Crate to York", Status: model.SessionComplete, CreatedAt: time.Now()},
	)
	svc, _ := newIngest(newFakeEmails(), sessions, newFakeVendors(), newFakeDeduper())

	require.NoError(t, svc.HandleEmailReceived(context.Background(), mustPayload(t, contractsmq.EmailReceivedPayload{
		MessageID: "<re-subject>",
		Subject:   "RE: re: crate to york",
		Body:      "Recipient city: York",
		Category:  "shipping_request",
	})))

	assert.Empty(t, sessions.created)
	assert.Equal(t, "York", sessions.byID[51].RecipientCity)
	assert.Equal(t, model.SessionIncomplete, sessions.byID[51].Status)
	assert.NotContains(t, sessions.byID[51].MissingFields, "recipient_city")
	assert.Empty(t, sessions.byID[50].RecipientCity)
}

func TestHandleEmailReceivedPlainSubjectDoesNotMatchSession(t *testing.T) {
	sessions := newFakeSessions(model.ShipmentSession{ID: 60, Subject: "Crate to York", Status: model.SessionIncomplete})
	svc, _ := newIngest(newFakeEmails(), sessions, newFakeVendors(), newFakeDeduper())

	require.NoError(t, svc.HandleEmailReceived(context.Background(), mustPayload(t, contractsmq.EmailReceivedPayload{
		MessageID: "<new-req>",
		Subject:   "Crate to York",
		Body:      "Recipient city: Hull",
		Category:  "shipping_request",
	})))

	require.Len(t, sessions.created, 1)
	assert.Empty(t, sessions.byID[60].RecipientCity)
	assert.Equal(t, "Hull", sessions.byID[sessions.created[0]].RecipientCity)
}

func TestReplySubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Re: Pallet move", "Pallet move", true},
		{"RE:re: Pallet move ", "Pallet move", true},
		{"Pallet move", "Pallet move", false},
		{"Re:", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := replySubject(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}
