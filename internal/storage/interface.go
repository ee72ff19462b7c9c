package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
	ErrClosed       = errors.New("store closed")
)

// Record is one journaled lifecycle event
type Record struct {
	ID string `json:"id" bson:"_id"`
	// Event is the lifecycle event kind (configured, started, stopped)
	Event string `json:"event" bson:"event"`
	// State is the controller state after the event
	State string `json:"state" bson:"state"`
	// Configuration describes the configuration in effect, without secrets
	Configuration string    `json:"configuration,omitempty" bson:"configuration,omitempty"`
	Timestamp     time.Time `json:"timestamp" bson:"timestamp"`
}

// EventStore persists lifecycle event records
type EventStore interface {
	// Append stores a record. The ID is assigned by the caller.
	Append(ctx context.Context, rec *Record) error

	// List returns up to limit records, newest first. A limit <= 0 returns
	// every retained record.
	List(ctx context.Context, limit int) ([]*Record, error)

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error

	// Close releases the storage connection
	Close() error
}
