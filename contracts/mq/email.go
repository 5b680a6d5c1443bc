package mq

import "time"

// EmailReceivedPayload is published by the mailbox poller after classification.
type EmailReceivedPayload struct {
	MessageID         string    `json:"message_id"`
	ThreadID          string    `json:"thread_id,omitempty"`
	InReplyTo         string    `json:"in_reply_to,omitempty"`
	SenderEmail       string    `json:"sender_email"`
	SenderName        string    `json:"sender_name,omitempty"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	Category          string    `json:"category"`
	IsShippingRequest bool      `json:"is_shipping_request"`
	IsReply           bool      `json:"is_reply,omitempty"`
	IsForwarded       bool      `json:"is_forwarded,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
	TraceID           string    `json:"trace_id,omitempty"`
}

// ReplyRequestedPayload asks the worker to deliver an operator reply.
type ReplyRequestedPayload struct {
	ReplyID   int64  `json:"reply_id"`
	EmailID   int64  `json:"email_id"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	MessageID string `json:"message_id"`
	InReplyTo string `json:"in_reply_to,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}
