package model

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/bwmarrin/snowflake"
)

// Sequencer hands out strictly increasing insertion sequence numbers for
// transcript events. Each transcript store owns one. Sequence numbers order
// events that share a timestamp; they are not unique across processes.
type Sequencer struct {
	node *snowflake.Node
}

// NewSequencer creates a sequencer for the given node (0..1023).
func NewSequencer(node int64) (*Sequencer, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("NewSequencer: %w", err)
	}
	return &Sequencer{node: n}, nil
}

// NewInstanceSequencer creates a sequencer on a node derived from the process
// id and a random salt, so that processes sharing a database rarely collide.
func NewInstanceSequencer() (*Sequencer, error) {
	node := (int64(os.Getpid()) ^ rand.Int64N(1<<10)) & 1023
	return NewSequencer(node)
}

// Next returns the next sequence number.
func (s *Sequencer) Next() int64 {
	return s.node.Generate().Int64()
}
