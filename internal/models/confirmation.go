package models

import "time"

// ConfirmationStatus is the lifecycle state of a PendingConfirmation.
type ConfirmationStatus string

const (
	StatusPending  ConfirmationStatus = "pending"
	StatusApproved ConfirmationStatus = "approved"
	StatusDenied   ConfirmationStatus = "denied"
	StatusExpired  ConfirmationStatus = "expired"
)

// Terminal returns true once the confirmation can no longer change state.
func (s ConfirmationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusExpired
}

// Decision is an explicit user action on a pending confirmation.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// IsValid returns true if the decision is recognized.
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionDeny
}

// PendingConfirmation is a queue entry for a fact awaiting user confirmation.
// Terminal entries are immutable and retained for audit.
type PendingConfirmation struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Fact       Fact               `json:"fact"`
	Reason     string             `json:"reason,omitempty"`
	Status     ConfirmationStatus `json:"status"`
	Consumed   bool               `json:"consumed,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
	ResolvedAt *time.Time         `json:"resolved_at,omitempty"`
}
