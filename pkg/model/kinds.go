package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned for tags outside the closed MemoryKind set.
var ErrUnknownKind = errors.New("unknown memory kind")

// MemoryKind classifies a memory item. It drives the default salience and
// the retention policy.
type MemoryKind string

const (
	KindIdentity    MemoryKind = "identity"
	KindConstraint  MemoryKind = "constraint"
	KindInstruction MemoryKind = "instruction"
	KindAversion    MemoryKind = "aversion"
	KindPreference  MemoryKind = "preference"
	KindGoal        MemoryKind = "goal"
	KindDecision    MemoryKind = "decision"
	KindTask        MemoryKind = "task"
	KindFeedback    MemoryKind = "feedback"
	KindArtifact    MemoryKind = "artifact"
	KindProcedure   MemoryKind = "procedure"
	KindFact        MemoryKind = "fact"
	KindEvent       MemoryKind = "event"
)

var defaultSalience = map[MemoryKind]float64{
	KindIdentity:    0.90,
	KindConstraint:  0.80,
	KindInstruction: 0.80,
	KindDecision:    0.75,
	KindAversion:    0.70,
	KindPreference:  0.70,
	KindGoal:        0.70,
	KindFeedback:    0.70,
	KindArtifact:    0.65,
	KindTask:        0.60,
	KindProcedure:   0.60,
	KindFact:        0.60,
	KindEvent:       0.55,
}

// Kinds returns every known kind, highest default salience first.
func Kinds() []MemoryKind {
	return []MemoryKind{
		KindIdentity, KindConstraint, KindInstruction, KindDecision,
		KindAversion, KindPreference, KindGoal, KindFeedback,
		KindArtifact, KindTask, KindProcedure, KindFact, KindEvent,
	}
}

// ParseMemoryKind converts a stored or model-supplied tag into a kind.
func ParseMemoryKind(s string) (MemoryKind, error) {
	k := MemoryKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := defaultSalience[k]; !ok {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownKind)
	}
	return k, nil
}

// Valid reports whether k belongs to the closed set.
func (k MemoryKind) Valid() bool {
	_, ok := defaultSalience[k]
	return ok
}

// DefaultSalience is the salience assigned when an extractor has no better
// estimate.
func (k MemoryKind) DefaultSalience() float64 {
	if s, ok := defaultSalience[k]; ok {
		return s
	}
	return 0.5
}

func (k MemoryKind) String() string { return string(k) }
