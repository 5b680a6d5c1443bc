// Package thread groups emails and their attached operator replies into
// conversation timelines.
package thread

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"vendordesk/internal/model"
)

// Kind tags a timeline entry as an inbound original or an expanded operator reply.
type Kind string

const (
	KindOriginal      Kind = "original"
	KindOperatorReply Kind = "operator_reply"
)

const syntheticPrefix = "single:"

var ErrNoReplyTarget = errors.New("thread: entry has no reply target")

// Entry is one item of a thread timeline. Entries are copies; the source
// emails are never modified.
type Entry struct {
	ID            string              `json:"id"`
	Kind          Kind                `json:"kind"`
	EmailID       int64               `json:"emailId,omitempty"`
	ParentEmailID int64               `json:"parentEmailId,omitempty"`
	ReplyID       int64               `json:"replyId,omitempty"`
	ThreadID      string              `json:"threadId"`
	Subject       string              `json:"subject"`
	Category      model.EmailCategory `json:"category"`
	SenderEmail   string              `json:"senderEmail,omitempty"`
	SenderName    string              `json:"senderName,omitempty"`
	Content       string              `json:"content"`
	Timestamp     model.Timestamp     `json:"timestamp"`
	IsReply       bool                `json:"isReply"`
}

// Thread is a conversation. Entries are ordered oldest first.
type Thread struct {
	ThreadID  string  `json:"threadId"`
	Synthetic bool    `json:"synthetic"`
	Entries   []Entry `json:"emails"`
	First     Entry   `json:"firstEmail"`
	Latest    Entry   `json:"latestEmail"`
}

// Synthetic and real ids live in separate key spaces so "single:x" as a real
// thread id never merges with a single-message thread.
type groupKey struct {
	synthetic bool
	id        string
}

func keyOf(e model.Email) groupKey {
	if id := strings.TrimSpace(e.ThreadID); id != "" {
		return groupKey{id: id}
	}
	if mid := strings.TrimSpace(e.MessageID); mid != "" {
		return groupKey{synthetic: true, id: mid}
	}
	return groupKey{synthetic: true, id: "email:" + strconv.FormatInt(e.ID, 10)}
}

func (k groupKey) exported() string {
	if k.synthetic {
		return syntheticPrefix + k.id
	}
	return k.id
}

// Lookup names the stored emails that can belong to an exported thread id.
// ThreadID is always set, since a real thread id may itself start with "single:".
type Lookup struct {
	ThreadID  string
	MessageID string
	EmailID   int64
}

func LookupFor(id string) Lookup {
	l := Lookup{ThreadID: id}
	rest, ok := strings.CutPrefix(id, syntheticPrefix)
	if !ok || rest == "" {
		return l
	}
	l.MessageID = rest
	if raw, ok := strings.CutPrefix(rest, "email:"); ok {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			l.EmailID = n
		}
	}
	return l
}

// Assemble groups emails into threads. Each operator reply becomes its own
// entry carrying a back-reference to the parent email. Threads are ordered by
// their latest entry, most recent first; ties keep first-appearance order.
func Assemble(emails []model.Email) []Thread {
	threads := make([]Thread, 0)
	index := make(map[groupKey]int)
	ids := make(map[string]int)

	for _, e := range emails {
		key := keyOf(e)
		i, ok := index[key]
		if !ok {
			i = len(threads)
			index[key] = i
			threads = append(threads, Thread{ThreadID: key.exported(), Synthetic: key.synthetic})
		}
		for _, en := range expand(e, threads[i].ThreadID) {
			// repeated email ids get a "#n" suffix from the second occurrence on
			ids[en.ID]++
			if n := ids[en.ID]; n > 1 {
				en.ID = fmt.Sprintf("%s#%d", en.ID, n)
			}
			threads[i].Entries = append(threads[i].Entries, en)
		}
	}

	for i := range threads {
		entries := threads[i].Entries
		sort.SliceStable(entries, func(a, b int) bool {
			return entries[a].Timestamp.Before(entries[b].Timestamp)
		})
		threads[i].First = entries[0]
		threads[i].Latest = entries[len(entries)-1]
	}

	sort.SliceStable(threads, func(a, b int) bool {
		return threads[a].Latest.Timestamp.After(threads[b].Latest.Timestamp)
	})
	return threads
}

func expand(e model.Email, threadID string) []Entry {
	out := make([]Entry, 0, 1+len(e.Responses))
	out = append(out, Entry{
		ID:          "email:" + strconv.FormatInt(e.ID, 10),
		Kind:        KindOriginal,
		EmailID:     e.ID,
		ThreadID:    threadID,
		Subject:     e.Subject,
		Category:    e.Category,
		SenderEmail: e.SenderEmail,
		SenderName:  e.SenderName,
		Content:     e.Body,
		Timestamp:   e.ReceivedAt,
		IsReply:     e.IsReply,
	})
	for _, r := range e.Responses {
		out = append(out, Entry{
			ID:            fmt.Sprintf("reply:%d:%d", e.ID, r.ID),
			Kind:          KindOperatorReply,
			ParentEmailID: e.ID,
			ReplyID:       r.ID,
			ThreadID:      threadID,
			Subject:       e.Subject,
			Category:      e.Category,
			Content:       r.Body,
			Timestamp:     r.SentAt,
			IsReply:       true,
		})
	}
	return out
}

// ReplyTarget returns the id of the stored email a follow-up reply to entry
// must be sent against.
func ReplyTarget(entry Entry) (int64, error) {
	switch entry.Kind {
	case KindOriginal:
		if entry.EmailID > 0 {
			return entry.EmailID, nil
		}
	case KindOperatorReply:
		if entry.ParentEmailID > 0 {
			return entry.ParentEmailID, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNoReplyTarget, entry.ID)
}

// LatestReplyTarget is the reply target for answering a thread as a whole.
func LatestReplyTarget(t Thread) (int64, error) {
	return ReplyTarget(t.Latest)
}
