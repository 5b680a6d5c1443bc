package notifier

import (
	"fmt"
	"strings"

	contractsmq "vendordesk/contracts/mq"
	"vendordesk/internal/model"
)

type Kind string

const (
	KindVendorAssignment Kind = "vendor_assignment"
	KindOperatorReply    Kind = "operator_reply"
)

// Message is an outbound plain-text email.
type Message struct {
	Kind      Kind
	To        string
	Subject   string
	Text      string
	MessageID string
	InReplyTo string
}

// ComposeVendorNotification writes the casual heads-up a vendor receives when a
// session is assigned to them. Lines for empty session fields are left out.
func ComposeVendorNotification(s model.ShipmentSession, v model.Vendor) Message {
	var b strings.Builder

	fmt.Fprintf(&b, "Hey %s,\n\n", firstName(v.Name))
	fmt.Fprintf(&b, "Quick heads up: we have a new shipment booking (#%d) that needs your attention.\n\n", s.ID)
	b.WriteString("Here's what we're working with:\n\n")

	if s.PackageDescription != "" {
		fmt.Fprintf(&b, "Package: %s\n", s.PackageDescription)
	}
	if s.SenderName != "" && s.SenderCity != "" {
		fmt.Fprintf(&b, "Pickup: %s (%s)\n", place(s.SenderCity, s.SenderState), s.SenderName)
	}
	if s.RecipientName != "" && s.RecipientCity != "" {
		fmt.Fprintf(&b, "Delivery: %s (%s)\n", place(s.RecipientCity, s.RecipientState), s.RecipientName)
	}
	if s.PackageWeight != "" {
		fmt.Fprintf(&b, "Weight: %s\n", s.PackageWeight)
	}
	if s.PackageDimensions != "" {
		fmt.Fprintf(&b, "Dimensions: %s\n", s.PackageDimensions)
	}
	if s.ServiceType != "" {
		fmt.Fprintf(&b, "Service: %s\n", s.ServiceType)
	}

	b.WriteString("\nCould you take a look and let us know if you can handle this one? ")
	b.WriteString("Just reply to this email or give us a call if you need more details.\n\n")
	b.WriteString("Thanks!\n")

	return Message{
		Kind:    KindVendorAssignment,
		To:      v.Email,
		Subject: fmt.Sprintf("New Shipment Assignment - %d", s.ID),
		Text:    b.String(),
	}
}

// ComposeReply builds the outbound email for an operator reply.
func ComposeReply(p contractsmq.ReplyRequestedPayload) Message {
	return Message{
		Kind:      KindOperatorReply,
		To:        p.To,
		Subject:   ReplySubject(p.Subject),
		Text:      p.Body,
		MessageID: p.MessageID,
		InReplyTo: p.InReplyTo,
	}
}

// ReplySubject prefixes "Re: " unless the subject already carries it.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re: your shipment request"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func place(city, state string) string {
	if state == "" {
		return city
	}
	return city + ", " + state
}
