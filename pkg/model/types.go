package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrDimensionMismatch means an embedding does not match the configured
	// dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidItem means a memory item or event violates a field constraint.
	ErrInvalidItem = errors.New("invalid memory item")
)

// Role labels the author of a transcript event.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Label is the capitalised role used in rendered prompts.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// ParseRole converts a stored role tag.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAssistant, RoleTool:
		return r, nil
	}
	return "", fmt.Errorf("role %q: %w", s, ErrInvalidItem)
}

// Source records which extraction path produced a memory item.
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceModel     Source = "model"
	SourceExplicit  Source = "explicit"
)

// ToolEvent is a tool invocation result attached to a turn.
type ToolEvent struct {
	Name    string
	Content string
}

// Turn is one user message, the assistant reply and any tool events.
type Turn struct {
	SessionID     SessionID
	Number        int64
	UserText      string
	AssistantText string
	ToolEvents    []ToolEvent
}

// TranscriptEvent is an immutable transcript line.
type TranscriptEvent struct {
	TurnID    TurnID
	SessionID SessionID
	Role      Role
	Content   string
	ToolName  string
	Timestamp time.Time
	// Seq orders events that share a timestamp.
	Seq int64
}

// Draft is a candidate memory before dedupe and embedding.
type Draft struct {
	Kind     MemoryKind
	Content  string
	Salience float64
	Source   Source
	// Rule names the heuristic rule that matched, if any.
	Rule string
}

// MemoryItem is a persisted long-term memory.
type MemoryItem struct {
	ID             MemoryID
	SessionID      SessionID
	Kind           MemoryKind
	Content        string
	Hash           string
	Embedding      []float64
	Salience       float64
	Source         Source
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Validate checks the item against the configured embedding dimension and
// content bound. A non-positive bound disables the corresponding check.
func (m *MemoryItem) Validate(dims, maxChars int) error {
	switch {
	case m.ID.IsZero():
		return fmt.Errorf("missing id: %w", ErrInvalidItem)
	case m.SessionID.IsZero():
		return fmt.Errorf("missing session id: %w", ErrInvalidItem)
	case !m.Kind.Valid():
		return fmt.Errorf("kind %q: %w", m.Kind, ErrInvalidItem)
	case strings.TrimSpace(m.Content) == "":
		return fmt.Errorf("empty content: %w", ErrInvalidItem)
	case maxChars > 0 && utf8.RuneCountInString(m.Content) > maxChars:
		return fmt.Errorf("content exceeds %d chars: %w", maxChars, ErrInvalidItem)
	case m.Salience < 0 || m.Salience > 1:
		return fmt.Errorf("salience %v out of range: %w", m.Salience, ErrInvalidItem)
	case m.Hash == "":
		return fmt.Errorf("missing hash: %w", ErrInvalidItem)
	}
	if dims > 0 && len(m.Embedding) != dims {
		return fmt.Errorf("got %d, want %d: %w", len(m.Embedding), dims, ErrDimensionMismatch)
	}
	return nil
}

// Age returns how long ago the item was created, never negative.
func (m *MemoryItem) Age(now time.Time) time.Duration {
	if d := now.Sub(m.CreatedAt); d > 0 {
		return d
	}
	return 0
}

// SessionSummary is the rolling summary of a session.
type SessionSummary struct {
	SessionID SessionID
	Text      string
	// TurnCount is the turn counter at the last regeneration.
	TurnCount int64
	UpdatedAt time.Time
}

// RankedMemory is a memory item with its score components.
type RankedMemory struct {
	Item       *MemoryItem
	Similarity float64
	Recency    float64
	Salience   float64
	Score      float64
}

// Truncate returns s cut to at most n runes, trailing whitespace removed.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimRightFunc(string(r[:n]), func(c rune) bool {
		return c == ' ' || c == '\n' || c == '\t'
	})
}
