/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package models defines the persisted records of the scheduler. The
// CallRecord is the durable form of a scheduled call; TransitionEvent
// rows are the append-only log everything else is rebuilt from.
package models

import "time"

// CallRecord is the durable snapshot of one scheduled call.
type CallRecord struct {
	ID string `gorm:"type:uuid;primaryKey"`

	// Meta.
	Owner         string `gorm:"index"`
	Creator       string
	Cancelled     bool
	WasCalled     bool
	WasSuccessful bool

	// Schedule parameters, immutable once validated.
	FeeAmount               uint64
	BountyAmount            uint64
	ClaimWindowSize         uint64
	FreezePeriod            uint64
	ReservedClaimWindowSize uint64
	TemporalUnit            uint8
	ExecutionWindowSize     uint64
	WindowStart             uint64 `gorm:"index"`
	CallGasLimit            uint64
	CallValue               uint64

	// Claim data.
	Claimant        string
	Collateral      uint64
	PaymentModifier uint64

	// Payment data.
	Endowment        uint64
	FeeRecipient     string
	FeeOwed          uint64
	BountyBenefactor string
	BountyOwed       uint64
	GasUsed          uint64

	// Call data.
	Target   string
	Payload  []byte
	Value    uint64
	GasLimit uint64

	DiscoveryBucket int64 `gorm:"index"`
	Status          string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransitionEvent is one entry of the global append-only event log.
// Replaying all rows ordered by Seq reconstructs every call, the
// known-requests set, and the discovery index.
type TransitionEvent struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement"`
	RequestID string `gorm:"type:uuid;index"`
	Kind      string `gorm:"type:varchar(16);index"`
	Caller    string
	At        uint64

	// Creation payload; empty on later transitions.
	Owner        string
	FeeRecipient string
	Target       string
	Payload      []byte
	Endowment    uint64

	FeeAmount               uint64
	BountyAmount            uint64
	ClaimWindowSize         uint64
	FreezePeriod            uint64
	ReservedClaimWindowSize uint64
	TemporalUnit            uint8
	ExecutionWindowSize     uint64
	WindowStart             uint64
	CallGasLimit            uint64
	CallValue               uint64

	// Transition payload.
	Collateral uint64
	Modifier   uint64
	CallOK     bool
	GasUsed    uint64
	Refund     uint64

	CreatedAt time.Time
}

// RejectionRecord preserves a failed scheduling attempt with its full
// diagnostic vector.
type RejectionRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Requester   string `gorm:"index"`
	ReasonCode  string
	CheckVector string `gorm:"type:varchar(16)"` // six '0'/'1' digits in check order
	CreatedAt   time.Time
}

// AuditEntry is a human-auditable event trail row written by the audit
// service off the event bus.
type AuditEntry struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	EventType string `gorm:"type:varchar(32);index"`
	RequestID string `gorm:"type:uuid;index"`
	Detail    string `gorm:"type:text"`
	CreatedAt time.Time
}

// APIKey authenticates external schedulers and claim bots against the
// HTTP surface. Only the bcrypt hash of the key is stored.
type APIKey struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	Name       string `gorm:"uniqueIndex"`
	Subject    string `gorm:"index"` // account address the key acts for
	KeyHash    string
	KeyPrefix  string `gorm:"index"`
	Revoked    bool
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsExpired reports whether the key is past its expiry.
func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// WebhookTarget is an HTTP endpoint that receives lifecycle events.
// Events is a comma-separated list of event types; empty means all.
type WebhookTarget struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string
	URL       string
	Secret    string
	Events    string
	Active    bool `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookLog records one delivery attempt.
type WebhookLog struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	TargetID   string `gorm:"type:uuid;index"`
	Event      string
	RequestID  string `gorm:"type:uuid;index"`
	StatusCode int
	Error      string
	CreatedAt  time.Time
}
