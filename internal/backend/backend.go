package backend

import (
	"context"
	"fmt"

	"github.com/sirosfoundation/go-httpservice/internal/storage"
	"github.com/sirosfoundation/go-httpservice/internal/storage/memory"
	"github.com/sirosfoundation/go-httpservice/internal/storage/mongodb"
	"github.com/sirosfoundation/go-httpservice/pkg/config"
)

// Type defines the type of journal storage
type Type string

const (
	// TypeMemory keeps the most recent events in process memory
	TypeMemory Type = "memory"
	// TypeMongoDB persists events to MongoDB
	TypeMongoDB Type = "mongodb"
)

// New creates the event store selected by the journal configuration
func New(ctx context.Context, cfg *config.JournalConfig) (storage.EventStore, error) {
	storageType := Type(cfg.Type)

	switch storageType {
	case TypeMemory, "":
		// Default to memory if not specified
		return memory.NewStore(cfg.Capacity), nil

	case TypeMongoDB:
		store, err := mongodb.NewStore(ctx, &cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB journal: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported journal type: %s", storageType)
	}
}
