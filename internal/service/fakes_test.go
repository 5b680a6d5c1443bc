package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"vendordesk/internal/model"
	"vendordesk/internal/repository"
)

type fakeEmails struct {
	byID      map[int64]*model.Email
	nextID    int64
	nextReply int64
	totals    model.EmailTotals
	err       error
	// insertErrs fail the next InsertTx calls in order.
	insertErrs []error
	tx         *fakeTx
}

func newFakeEmails(emails ...model.Email) *fakeEmails {
	f := &fakeEmails{byID: map[int64]*model.Email{}, nextID: 100, nextReply: 500}
	for i := range emails {
		e := emails[i]
		f.byID[e.ID] = &e
	}
	return f
}

func (f *fakeEmails) List(_ context.Context, _ repository.EmailFilter) ([]model.Email, error) {
	out := make([]model.Email, 0, len(f.byID))
	for _, e := range f.byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, f.err
}

func (f *fakeEmails) GetByID(_ context.Context, id int64) (*model.Email, error) {
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	cp.Responses = append([]model.EmailReply(nil), e.Responses...)
	return &cp, nil
}

func (f *fakeEmails) GetByMessageID(_ context.Context, messageID string) (*model.Email, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, e := range f.byID {
		if e.MessageID == messageID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeEmails) InsertTx(_ context.Context, _ pgx.Tx, e *model.Email) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		return false, err
	}
	for _, existing := range f.byID {
		if existing.MessageID == e.MessageID {
			return false, nil
		}
	}
	f.nextID++
	e.ID = f.nextID
	cp := *e
	f.byID[e.ID] = &cp
	id := e.ID
	f.tx.onRollback(func() { delete(f.byID, id) })
	return true, nil
}

func (f *fakeEmails) Totals(context.Context) (model.EmailTotals, error) {
	return f.totals, f.err
}

func (f *fakeEmails) InsertReplyTx(_ context.Context, _ pgx.Tx, emailID int64, reply *model.EmailReply) error {
	e, ok := f.byID[emailID]
	if !ok {
		return repository.ErrNotFound
	}
	f.nextReply++
	reply.ID = f.nextReply
	reply.SentAt = model.NewTimestamp(time.Now())
	e.Responses = append(e.Responses, *reply)
	return nil
}

type fakeSessions struct {
	byID      map[int64]*model.ShipmentSession
	nextID    int64
	replied   []int64
	created   []int64
	extracted map[int64]map[string]string
	listErr   error
	lists     int
	// writeErrs fail the next session writes in order.
	writeErrs []error
	tx        *fakeTx
}

func newFakeSessions(sessions ...model.ShipmentSession) *fakeSessions {
	f := &fakeSessions{byID: map[int64]*model.ShipmentSession{}, nextID: 1000, extracted: map[int64]map[string]string{}}
	for i := range sessions {
		s := sessions[i]
		f.byID[s.ID] = &s
	}
	return f
}

func (f *fakeSessions) failWrite() error {
	if len(f.writeErrs) == 0 {
		return nil
	}
	err := f.writeErrs[0]
	f.writeErrs = f.writeErrs[1:]
	return err
}

// snapshot restores the session as it is now if the transaction rolls back.
func (f *fakeSessions) snapshot(s *model.ShipmentSession) {
	before := *s
	f.tx.onRollback(func() { *s = before })
}

func (f *fakeSessions) List(_ context.Context, _ repository.SessionFilter) ([]model.ShipmentSession, error) {
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.ShipmentSession, 0, len(f.byID))
	for _, s := range f.byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSessions) GetByID(_ context.Context, id int64) (*model.ShipmentSession, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) AssignVendorTx(_ context.Context, _ pgx.Tx, sessionID, vendorID int64) error {
	s, ok := f.byID[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	s.VendorID = &vendorID
	s.VendorNotifiedAt = nil
	s.VendorRepliedAt = nil
	return nil
}

// LatestAwaitingReply picks the most recently notified unanswered session, as the SQL does.
func (f *fakeSessions) LatestAwaitingReply(_ context.Context, vendorID int64) (*model.ShipmentSession, error) {
	var best *model.ShipmentSession
	for _, s := range f.byID {
		if !s.AssignedTo(vendorID) || s.VendorNotifiedAt == nil || s.VendorRepliedAt != nil {
			continue
		}
		if best == nil || s.VendorNotifiedAt.After(*best.VendorNotifiedAt) ||
			(s.VendorNotifiedAt.Equal(*best.VendorNotifiedAt) && s.ID > best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeSessions) MarkVendorRepliedTx(_ context.Context, _ pgx.Tx, sessionID int64, at time.Time, messageID, content string) error {
	if err := f.failWrite(); err != nil {
		return err
	}
	s, ok := f.byID[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	if s.VendorRepliedAt != nil {
		return nil
	}
	f.snapshot(s)
	n := len(f.replied)
	f.tx.onRollback(func() { f.replied = f.replied[:n] })
	s.VendorRepliedAt = &at
	s.VendorReplyMessageID = messageID
	s.VendorReplyContent = content
	f.replied = append(f.replied, sessionID)
	return nil
}

func (f *fakeSessions) InsertTx(_ context.Context, _ pgx.Tx, s *model.ShipmentSession, extracted map[string]string) (bool, error) {
	if err := f.failWrite(); err != nil {
		return false, err
	}
	for _, existing := range f.byID {
		if existing.EmailID == s.EmailID {
			return false, nil
		}
	}
	f.nextID++
	s.ID = f.nextID
	cp := *s
	f.byID[s.ID] = &cp
	f.extracted[s.ID] = extracted
	f.created = append(f.created, s.ID)
	id, n := s.ID, len(f.created)-1
	f.tx.onRollback(func() {
		delete(f.byID, id)
		f.created = f.created[:n]
	})
	return true, nil
}

func (f *fakeSessions) UpdateFieldsTx(_ context.Context, _ pgx.Tx, s *model.ShipmentSession) error {
	if err := f.failWrite(); err != nil {
		return err
	}
	stored, ok := f.byID[s.ID]
	if !ok {
		return repository.ErrNotFound
	}
	f.snapshot(stored)
	*stored = *s
	return nil
}

func (f *fakeSessions) latestIncomplete(match func(*model.ShipmentSession) bool) (*model.ShipmentSession, error) {
	var best *model.ShipmentSession
	for _, s := range f.byID {
		if s.Status != model.SessionIncomplete || !match(s) {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) || (s.CreatedAt.Equal(best.CreatedAt) && s.ID > best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeSessions) LatestIncompleteByThread(_ context.Context, threadID string) (*model.ShipmentSession, error) {
	return f.latestIncomplete(func(s *model.ShipmentSession) bool { return s.ThreadID == threadID })
}

func (f *fakeSessions) LatestIncompleteBySubject(_ context.Context, subject string) (*model.ShipmentSession, error) {
	return f.latestIncomplete(func(s *model.ShipmentSession) bool {
		return strings.Contains(strings.ToLower(s.Subject), strings.ToLower(subject))
	})
}

type fakeVendors struct {
	byID map[int64]model.Vendor
}

func newFakeVendors(vendors ...model.Vendor) *fakeVendors {
	f := &fakeVendors{byID: map[int64]model.Vendor{}}
	for _, v := range vendors {
		f.byID[v.ID] = v
	}
	return f
}

func (f *fakeVendors) List(_ context.Context, _ repository.VendorFilter) ([]model.Vendor, error) {
	out := make([]model.Vendor, 0, len(f.byID))
	for _, v := range f.byID {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeVendors) GetByID(_ context.Context, id int64) (*model.Vendor, error) {
	v, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (f *fakeVendors) GetByEmail(_ context.Context, email string) (*model.Vendor, error) {
	for _, v := range f.byID {
		if strings.EqualFold(v.Email, email) {
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

// fakeTx undoes the writes fakes registered through onRollback when fn fails.
type fakeTx struct {
	calls     int
	rollbacks int
	undo      []func()
}

func (f *fakeTx) InTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	f.calls++
	f.undo = nil
	err := fn(nil)
	if err != nil {
		f.rollbacks++
		for i := len(f.undo) - 1; i >= 0; i-- {
			f.undo[i]()
		}
	}
	f.undo = nil
	return err
}

func (f *fakeTx) onRollback(undo func()) {
	if f != nil {
		f.undo = append(f.undo, undo)
	}
}

type enqueued struct {
	aggregateType string
	aggregateID   int64
	routingKey    string
	payload       any
}

type fakeEvents struct {
	events []enqueued
	err    error
}

func (f *fakeEvents) Enqueue(_ context.Context, _ pgx.Tx, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, enqueued{aggregateType, aggregateID, routingKey, payload})
	return nil
}

type fakeDeduper struct {
	seen     map[string]bool
	released []string
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: map[string]bool{}}
}

func (f *fakeDeduper) AcquireOnce(_ context.Context, handler, key string) bool {
	k := handler + ":" + key
	if f.seen[k] {
		return false
	}
	f.seen[k] = true
	return true
}

func (f *fakeDeduper) Release(_ context.Context, handler, key string) {
	k := handler + ":" + key
	delete(f.seen, k)
	f.released = append(f.released, k)
}

var errCacheDown = errors.New("cache down")

type fakeCache struct {
	data   map[string][]byte
	getErr error
	sets   int
}

func (f *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	if f.getErr != nil {
		return false, f.getErr
	}
	b, ok := f.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (f *fakeCache) Set(_ context.Context, key string, v any, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	f.data[key] = b
	f.sets++
	return nil
}

func int64p(v int64) *int64 { return &v }
