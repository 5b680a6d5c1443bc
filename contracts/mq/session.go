package mq

import "time"

// VendorAssignedPayload asks the worker to notify the vendor of a new assignment.
type VendorAssignedPayload struct {
	SessionID  int64     `json:"session_id"`
	VendorID   int64     `json:"vendor_id"`
	AssignedAt time.Time `json:"assigned_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}
