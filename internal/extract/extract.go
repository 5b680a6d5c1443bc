// Package extract pulls "Field: value" style shipment details out of free-text
// email bodies and tracks which required fields a session still lacks.
package extract

import (
	"regexp"
	"strings"
	"time"

	"vendordesk/internal/model"
)

// Field names match the shipment_sessions columns and the missingFields values.
const (
	SenderName         = "sender_name"
	SenderAddress      = "sender_address"
	SenderCity         = "sender_city"
	SenderState        = "sender_state"
	SenderZipcode      = "sender_zipcode"
	SenderPhone        = "sender_phone"
	RecipientName      = "recipient_name"
	RecipientAddress   = "recipient_address"
	RecipientCity      = "recipient_city"
	PackageDescription = "package_description"
)

// Required lists the fields a shipment needs before it counts as complete, in
// the order they are reported as missing.
var Required = []string{
	SenderName,
	SenderAddress,
	SenderCity,
	RecipientName,
	RecipientAddress,
	RecipientCity,
	PackageDescription,
}

type rule struct {
	field    string
	patterns []*regexp.Regexp
}

func labelled(labels ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(labels))
	for i, l := range labels {
		out[i] = regexp.MustCompile(`(?im)` + l + `[ \t]*[:=][ \t]*(.+?)[ \t]*$`)
	}
	return out
}

// Rules are tried in order; the first matching pattern of a field wins.
var rules = []rule{
	{SenderName, append(labelled(`sender\s+name`, `from\s+name`), regexp.MustCompile(`(?im)my\s+name\s+is[ \t]+(.+?)[ \t]*$`))},
	{SenderAddress, labelled(`sender\s+address`, `pickup\s+address`, `from\s+address`)},
	{SenderCity, labelled(`sender\s+city`, `pickup\s+city`, `from\s+city`)},
	{SenderState, labelled(`sender\s+state`)},
	{SenderZipcode, labelled(`sender\s+(?:zip|zipcode|postal)`)},
	{SenderPhone, labelled(`sender\s+phone`, `^[ \t]*phone`)},
	{RecipientName, labelled(`recipient\s+name`, `to\s+name`)},
	{RecipientAddress, labelled(`recipient\s+address`, `delivery\s+address`, `to\s+address`)},
	{RecipientCity, labelled(`recipient\s+city`, `delivery\s+city`)},
	{PackageDescription, labelled(`package\s+description`, `^[ \t]*description`)},
}

// Fields returns the labelled values found in body keyed by field name.
// Values keep their original case.
func Fields(body string) map[string]string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	found := make(map[string]string)
	for _, r := range rules {
		for _, re := range r.patterns {
			m := re.FindStringSubmatch(body)
			if m == nil {
				continue
			}
			if v := strings.TrimSpace(m[1]); v != "" {
				found[r.field] = v
				break
			}
		}
	}
	return found
}

// Merge copies values into empty fields of s. Fields that already hold a value
// are left alone. It reports whether anything changed.
func Merge(s *model.ShipmentSession, values map[string]string) bool {
	changed := false
	for field, v := range values {
		dst := fieldPtr(s, field)
		if dst == nil || *dst != "" || v == "" {
			continue
		}
		*dst = v
		changed = true
	}
	return changed
}

// Missing returns the required fields s has no value for.
func Missing(s *model.ShipmentSession) []string {
	missing := []string{}
	for _, field := range Required {
		if p := fieldPtr(s, field); p != nil && strings.TrimSpace(*p) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Refresh recomputes MissingFields and moves s to complete once nothing is
// missing. Sessions already past the incomplete label keep their status.
func Refresh(s *model.ShipmentSession, now time.Time) {
	s.MissingFields = Missing(s)
	if len(s.MissingFields) == 0 && (s.Status == "" || s.Status == model.SessionIncomplete) {
		s.Status = model.SessionComplete
		if s.CompletedAt == nil {
			s.CompletedAt = &now
		}
	} else if s.Status == "" {
		s.Status = model.SessionIncomplete
	}
}

func fieldPtr(s *model.ShipmentSession, field string) *string {
	switch field {
	case SenderName:
		return &s.SenderName
	case SenderAddress:
		return &s.SenderAddress
	case SenderCity:
		return &s.SenderCity
	case SenderState:
		return &s.SenderState
	case SenderZipcode:
		return &s.SenderZipcode
	case SenderPhone:
		return &s.SenderPhone
	case RecipientName:
		return &s.RecipientName
	case RecipientAddress:
		return &s.RecipientAddress
	case RecipientCity:
		return &s.RecipientCity
	case PackageDescription:
		return &s.PackageDescription
	}
	return nil
}
