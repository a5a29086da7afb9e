// Package model defines the identifiers and records shared by every memory
// component: sessions, turns, transcript events, memory items and summaries.
package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ErrInvalidID is returned when an identifier cannot be parsed or is zero.
var ErrInvalidID = errors.New("invalid identifier")

// SessionID identifies a long-lived conversation.
//
// The zero value is invalid; use NewSessionID or ParseSessionID.
type SessionID struct {
	id uuid.UUID
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() SessionID {
	return SessionID{id: uuid.New()}
}

// ParseSessionID parses a stored session identifier.
//
// It is meant for storage boundaries only and rejects the nil UUID.
func ParseSessionID(s string) (SessionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, fmt.Errorf("session id %q: %w", s, ErrInvalidID)
	}
	if id == uuid.Nil {
		return SessionID{}, fmt.Errorf("session id %q: %w", s, ErrInvalidID)
	}
	return SessionID{id: id}, nil
}

// String returns the canonical textual form.
func (s SessionID) String() string { return s.id.String() }

// IsZero reports whether s was never assigned.
func (s SessionID) IsZero() bool { return s.id == uuid.Nil }

// MemoryID identifies a single long-term memory item.
type MemoryID struct {
	id uuid.UUID
}

// NewMemoryID returns a fresh random memory identifier.
func NewMemoryID() MemoryID {
	return MemoryID{id: uuid.New()}
}

// ParseMemoryID parses a stored memory identifier.
func ParseMemoryID(s string) (MemoryID, error) {
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return MemoryID{}, fmt.Errorf("memory id %q: %w", s, ErrInvalidID)
	}
	return MemoryID{id: id}, nil
}

func (m MemoryID) String() string { return m.id.String() }

// IsZero reports whether m was never assigned.
func (m MemoryID) IsZero() bool { return m.id == uuid.Nil }

// TurnID identifies one recorded turn. Turn ids sort by creation time.
type TurnID struct {
	id ulid.ULID
}

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewTurnID returns a ULID-based identifier stamped with t.
func NewTurnID(t time.Time) TurnID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return TurnID{id: ulid.MustNew(ulid.Timestamp(t), entropy)}
}

// ParseTurnID parses a stored turn identifier.
func ParseTurnID(s string) (TurnID, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return TurnID{}, fmt.Errorf("turn id %q: %w", s, ErrInvalidID)
	}
	if id == (ulid.ULID{}) {
		return TurnID{}, fmt.Errorf("turn id %q: %w", s, ErrInvalidID)
	}
	return TurnID{id: id}, nil
}

func (t TurnID) String() string { return t.id.String() }

// IsZero reports whether t was never assigned.
func (t TurnID) IsZero() bool { return t.id == ulid.ULID{} }

// Time returns the timestamp encoded in the identifier.
func (t TurnID) Time() time.Time { return ulid.Time(t.id.Time()) }
