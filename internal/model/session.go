package model

import "time"

// SessionStatus is the stored lifecycle label. It is passed through untouched and
// is independent of the display status derived from the vendor timestamps.
type SessionStatus string

const (
	SessionIncomplete  SessionStatus = "incomplete"
	SessionPendingInfo SessionStatus = "pending_info"
	SessionComplete    SessionStatus = "complete"
	SessionCreated     SessionStatus = "created"
	SessionPending     SessionStatus = "pending"
	SessionInProgress  SessionStatus = "in_progress"
	SessionCompleted   SessionStatus = "completed"
	SessionAssigned    SessionStatus = "assigned"
	SessionCancelled   SessionStatus = "cancelled"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionIncomplete, SessionPendingInfo, SessionComplete, SessionCreated, SessionPending,
		SessionInProgress, SessionCompleted, SessionAssigned, SessionCancelled:
		return true
	}
	return false
}

// IsComplete reports whether the stored label marks the shipment as finished.
func (s SessionStatus) IsComplete() bool {
	return s == SessionComplete || s == SessionCompleted
}

type ShipmentSession struct {
	ID       int64  `json:"id"`
	EmailID  int64  `json:"emailId"`
	VendorID *int64 `json:"vendorId"`

	VendorNotifiedAt     *time.Time `json:"vendorNotifiedAt"`
	VendorRepliedAt      *time.Time `json:"vendorRepliedAt"`
	VendorReplyMessageID string     `json:"vendorReplyMessageId,omitempty"`
	VendorReplyContent   string     `json:"vendorReplyContent,omitempty"`

	Status        SessionStatus `json:"status"`
	MissingFields []string      `json:"missingFields"`

	SenderName    string `json:"senderName"`
	SenderAddress string `json:"senderAddress"`
	SenderCity    string `json:"senderCity"`
	SenderState   string `json:"senderState"`
	SenderZipcode string `json:"senderZipcode"`
	SenderCountry string `json:"senderCountry"`
	SenderPhone   string `json:"senderPhone"`

	RecipientName    string `json:"recipientName"`
	RecipientAddress string `json:"recipientAddress"`
	RecipientCity    string `json:"recipientCity"`
	RecipientState   string `json:"recipientState"`
	RecipientZipcode string `json:"recipientZipcode"`
	RecipientCountry string `json:"recipientCountry"`
	RecipientPhone   string `json:"recipientPhone"`

	PackageWeight      string `json:"packageWeight"`
	PackageDimensions  string `json:"packageDimensions"`
	PackageDescription string `json:"packageDescription"`
	PackageValue       string `json:"packageValue"`

	ServiceType  string     `json:"serviceType"`
	PickupDate   *time.Time `json:"pickupDate"`
	DeliveryDate *time.Time `json:"deliveryDate"`

	ThreadID string `json:"threadId,omitempty"`
	Subject  string `json:"subject,omitempty"`

	MissingInfoUpdatedAt *time.Time `json:"missingInfoUpdatedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	CompletedAt          *time.Time `json:"completedAt"`
}

// HasVendor reports whether a vendor is assigned.
func (s ShipmentSession) HasVendor() bool {
	return s.VendorID != nil
}

// AssignedTo reports whether the session is assigned to vendorID.
func (s ShipmentSession) AssignedTo(vendorID int64) bool {
	return s.VendorID != nil && *s.VendorID == vendorID
}
