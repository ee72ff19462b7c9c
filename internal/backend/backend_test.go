package backend

import (
	"context"
	"testing"
	"time"

	"github.com/sirosfoundation/go-httpservice/internal/storage/memory"
	"github.com/sirosfoundation/go-httpservice/pkg/config"
)

func TestNew_MemoryBackend(t *testing.T) {
	for _, typ := range []string{"memory", ""} {
		store, err := New(context.Background(), &config.JournalConfig{Type: typ, Capacity: 5})
		if err != nil {
			t.Fatalf("New(%q) error = %v", typ, err)
		}
		if _, ok := store.(*memory.Store); !ok {
			t.Errorf("New(%q) returned %T, want *memory.Store", typ, store)
		}
		if err := store.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
		_ = store.Close()
	}
}

func TestNew_UnsupportedType(t *testing.T) {
	_, err := New(context.Background(), &config.JournalConfig{Type: "cassandra"})
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestNew_MongoDBUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := &config.JournalConfig{
		Type: "mongodb",
		MongoDB: config.MongoDBConfig{
			URI:      "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200",
			Database: "httpservice_test",
			Timeout:  1,
		},
	}
	if _, err := New(ctx, cfg); err == nil {
		t.Fatal("expected error when MongoDB is unreachable")
	}
}
