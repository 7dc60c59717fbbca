package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the delivery state of an event subscription. All
// transitions are driven by the publisher state machine, never by callers.
type SubscriptionStatus string

const (
	StatusDisabled          SubscriptionStatus = "disabled"
	StatusActive            SubscriptionStatus = "active"
	StatusAwaitingRetry     SubscriptionStatus = "awaitingRetry"
	StatusFailed            SubscriptionStatus = "failed"
	StatusRetryLimitReached SubscriptionStatus = "retryLimitReached"
)

// FailureDetails records the most recent delivery failure and, while awaiting
// retry, when the next attempt is due. Timestamps are epoch millis.
type FailureDetails struct {
	LastSuccessfulAt     int64  `json:"lastSuccessfulAt,omitempty"`
	LastFailedAt         int64  `json:"lastFailedAt,omitempty"`
	LastFailedStatusCode int    `json:"lastFailedStatusCode,omitempty"`
	LastFailedReason     string `json:"lastFailedReason,omitempty"`
	NextAttempt          int64  `json:"nextAttempt,omitempty"`
}

// EventFilter selects which change events a subscription receives. An empty
// Kinds list (or the "*" wildcard) matches every entity kind for the event
// type.
type EventFilter struct {
	EventType EventType `json:"eventType"`
	Kinds     []string  `json:"kinds,omitempty"`
}

// EventSubscription is an externally delivered notification channel (webhook,
// chat integration) with its own delivery state machine.
type EventSubscription struct {
	ID             uuid.UUID          `json:"id"`
	Name           string             `json:"name"`
	Endpoint       string             `json:"endpoint"`
	EventFilters   []EventFilter      `json:"eventFilters"`
	BatchSize      int                `json:"batchSize"`
	TimeoutSeconds int                `json:"timeoutSeconds"`
	SecretKey      string             `json:"-"`
	Status         SubscriptionStatus `json:"status"`
	FailureDetails *FailureDetails    `json:"failureDetails,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Timeout returns the per-delivery HTTP timeout.
func (s *EventSubscription) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Batch returns the effective batch size.
func (s *EventSubscription) Batch() int {
	if s.BatchSize <= 0 {
		return 10
	}
	return s.BatchSize
}
