package model

type EmailCategory string

const (
	CategoryShippingRequest  EmailCategory = "shipping_request"
	CategoryLogisticsInquiry EmailCategory = "logistics_inquiry"
	CategoryQuery            EmailCategory = "query"
	CategorySpam             EmailCategory = "spam"
	CategoryOther            EmailCategory = "other"
)

func (c EmailCategory) Valid() bool {
	switch c {
	case CategoryShippingRequest, CategoryLogisticsInquiry, CategoryQuery, CategorySpam, CategoryOther:
		return true
	}
	return false
}

type EmailStatus string

const (
	EmailUnprocessed EmailStatus = "unprocessed"
	EmailProcessing  EmailStatus = "processing"
	EmailCompleted   EmailStatus = "completed"
	EmailFailed      EmailStatus = "failed"
	EmailIgnored     EmailStatus = "ignored"
)

// Email is an inbound message. Operator replies sent against it are attached in Responses.
type Email struct {
	ID                int64         `json:"id"`
	MessageID         string        `json:"messageId"`
	ThreadID          string        `json:"threadId,omitempty"`
	SenderEmail       string        `json:"senderEmail"`
	SenderName        string        `json:"senderName"`
	Subject           string        `json:"subject"`
	Body              string        `json:"body"`
	Category          EmailCategory `json:"category"`
	IsShippingRequest bool          `json:"isShippingRequest"`
	Status            EmailStatus   `json:"status"`
	IsReply           bool          `json:"isReply"`
	IsForwarded       bool          `json:"isForwarded"`
	Responses         []EmailReply  `json:"responses"`
	ReceivedAt        Timestamp     `json:"receivedAt"`
	CreatedAt         Timestamp     `json:"createdAt"`
	UpdatedAt         Timestamp     `json:"updatedAt"`
}

// EmailReply is an operator reply stored against its originating Email.
type EmailReply struct {
	ID        int64     `json:"id"`
	MessageID string    `json:"messageId,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	SentAt    Timestamp `json:"sentAt"`
}

// EmailTotals are the counters the processing rate is computed from.
type EmailTotals struct {
	Total            int `json:"totalEmails"`
	ShippingRequests int `json:"shippingRequests"`
}
