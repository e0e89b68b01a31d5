// Package kvstore is the client's persistent key-value storage: the local
// copy of sessions, drafts and Career Quest progress.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a string-keyed blob store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Persisted keys.
const (
	KeyQuestSession        = "career_quest_session"
	KeyProfessionalSession = "espaceProfessionnelSession"
	KeyCommercialSession   = "commercial_session"
	KeyDiagnosticDraft     = "ma_consulting_professional_diagnostic"
)

// ProgressKey is where a Career Quest session's progress snapshot lives.
func ProgressKey(sessionID string) string {
	return "career_quest_progress::" + sessionID
}

// GetJSON decodes the value at key into out.
func GetJSON(ctx context.Context, s Store, key string, out any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// Options selects and configures a backend.
type Options struct {
	Backend  string // memory, sqlite, redis
	Path     string
	RedisURL string
}

// Open builds the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(ctx, opts.Path)
	case "redis":
		return OpenRedis(ctx, opts.RedisURL)
	default:
		return nil, fmt.Errorf("unknown kvstore backend %q", opts.Backend)
	}
}
