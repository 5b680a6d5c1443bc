// Package status derives the display status of a shipment session from its
// vendor assignment and vendor interaction timestamps.
package status

import (
	"fmt"
	"strings"

	"vendordesk/internal/model"
)

type DisplayStatus string

const (
	Unassigned   DisplayStatus = "UNASSIGNED"
	Assigned     DisplayStatus = "ASSIGNED"
	PendingReply DisplayStatus = "PENDING_REPLY"
	Replied      DisplayStatus = "REPLIED"
)

func (s DisplayStatus) Label() string {
	switch s {
	case Unassigned:
		return "Action required"
	case Assigned:
		return "Assigned"
	case PendingReply:
		return "Awaiting vendor"
	case Replied:
		return "Completed"
	}
	return string(s)
}

// Resolve classifies a session. First match wins:
// no vendor, vendor replied, vendor notified, vendor only.
// The stored Status field is not consulted.
func Resolve(s model.ShipmentSession) DisplayStatus {
	switch {
	case s.VendorID == nil:
		return Unassigned
	case s.VendorRepliedAt != nil:
		return Replied
	case s.VendorNotifiedAt != nil:
		return PendingReply
	default:
		return Assigned
	}
}

// FilterCounts are the tab counters. Assigned sessions count toward All only.
type FilterCounts struct {
	All          int `json:"all"`
	Unassigned   int `json:"unassigned"`
	PendingReply int `json:"pendingReply"`
	Replied      int `json:"replied"`
}

func Counts(sessions []model.ShipmentSession) FilterCounts {
	c := FilterCounts{All: len(sessions)}
	for _, s := range sessions {
		switch Resolve(s) {
		case Unassigned:
			c.Unassigned++
		case PendingReply:
			c.PendingReply++
		case Replied:
			c.Replied++
		}
	}
	return c
}

type Tab string

const (
	TabAll          Tab = "all"
	TabUnassigned   Tab = "unassigned"
	TabPendingReply Tab = "pending_reply"
	TabReplied      Tab = "replied"
)

// ParseTab accepts the tab names case-insensitively; blank means all.
func ParseTab(s string) (Tab, error) {
	switch Tab(strings.ToLower(strings.TrimSpace(s))) {
	case "", TabAll:
		return TabAll, nil
	case TabUnassigned:
		return TabUnassigned, nil
	case TabPendingReply, "pending-reply", "pending":
		return TabPendingReply, nil
	case TabReplied:
		return TabReplied, nil
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

// Display returns the single display status tab selects. TabAll selects none.
func (t Tab) Display() (DisplayStatus, bool) {
	switch t {
	case TabUnassigned:
		return Unassigned, true
	case TabPendingReply:
		return PendingReply, true
	case TabReplied:
		return Replied, true
	}
	return "", false
}

func (t Tab) matches(d DisplayStatus) bool {
	switch t {
	case TabUnassigned:
		return d == Unassigned
	case TabPendingReply:
		return d == PendingReply
	case TabReplied:
		return d == Replied
	}
	return true
}

// Filter returns the sessions shown under tab, in input order.
func Filter(sessions []model.ShipmentSession, tab Tab) []model.ShipmentSession {
	out := make([]model.ShipmentSession, 0, len(sessions))
	for _, s := range sessions {
		if tab.matches(Resolve(s)) {
			out = append(out, s)
		}
	}
	return out
}
