// Package projection holds the off-chain read models derived from ledger
// transactions. Records are JSON values addressed by slash-separated paths.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no record exists at a path.
var ErrNotFound = errors.New("projection record not found")

// Store is a hierarchical key-path store.
//
// Set overwrites the record at a path. Push appends a new child under a path
// with a time-ordered key and returns that key. List returns the direct
// children of a path ordered by key. Delete removes a path and everything
// beneath it.
type Store interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Set(ctx context.Context, path string, value interface{}) error
	Push(ctx context.Context, path string, value interface{}) (string, error)
	List(ctx context.Context, path string) ([]Entry, error)
	Delete(ctx context.Context, path string) error
}

// Entry is one child returned by List.
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Decode unmarshals the entry value into v.
func (e Entry) Decode(v interface{}) error {
	return json.Unmarshal(e.Value, v)
}

// GetInto reads path and unmarshals it into v.
func GetInto(ctx context.Context, s Store, path string, v interface{}) error {
	raw, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a record is stored at path.
func Exists(ctx context.Context, s Store, path string) (bool, error) {
	_, err := s.Get(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// NewPushKey returns a time-ordered child key.
func NewPushKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// encode marshals v unless it is already raw JSON.
func encode(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case json.RawMessage:
		if !json.Valid(t) {
			return nil, fmt.Errorf("invalid raw json")
		}
		return t, nil
	case []byte:
		if !json.Valid(t) {
			return nil, fmt.Errorf("invalid raw json")
		}
		return t, nil
	}
	return json.Marshal(v)
}

// splitPath returns the parent and last segment of path.
func splitPath(path string) (parent, key string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// cleanPath trims surrounding slashes and rejects empty segments.
func cleanPath(path string) (string, error) {
	p := strings.Trim(path, "/")
	if p == "" {
		return "", fmt.Errorf("empty projection path")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			return "", fmt.Errorf("projection path %q has an empty segment", path)
		}
	}
	return p, nil
}
