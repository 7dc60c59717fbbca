package models

import "github.com/google/uuid"

// EventType classifies a committed entity mutation.
type EventType string

const (
	EventEntityCreated     EventType = "entityCreated"
	EventEntityUpdated     EventType = "entityUpdated"
	EventEntitySoftDeleted EventType = "entitySoftDeleted"
	EventEntityDeleted     EventType = "entityDeleted"
	EventEntityRestored    EventType = "entityRestored"
)

// ChangeEvent is the record pushed onto the fan-out pipeline after an entity
// mutation commits.
type ChangeEvent struct {
	EventType         EventType          `json:"eventType"`
	EntityID          uuid.UUID          `json:"entityId"`
	EntityKind        EntityKind         `json:"entityKind"`
	EntityFQN         string             `json:"entityFullyQualifiedName"`
	PreviousVersion   *Version           `json:"previousVersion,omitempty"`
	CurrentVersion    Version            `json:"currentVersion"`
	UserName          string             `json:"userName"`
	Timestamp         int64              `json:"timestamp"` // epoch millis
	ChangeDescription *ChangeDescription `json:"changeDescription,omitempty"`
}
