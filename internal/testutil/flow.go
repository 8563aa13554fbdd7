package testutil

import (
	"fmt"
	"sync"
)

// FixedFlowGenerator returns the same flow token every time, so a whole
// scenario shares one flow. Empty means "test-flow-default".
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator creates a new fixed flow token generator.
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = "test-flow-default"
	}
	return &FixedFlowGenerator{token: token}
}

// Generate returns the fixed flow token.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}

// SequentialFlowGenerator returns "<prefix>-1", "<prefix>-2", ... so each
// call gets its own flow with a predictable name.
type SequentialFlowGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialFlowGenerator creates a generator; empty prefix means "flow".
func NewSequentialFlowGenerator(prefix string) *SequentialFlowGenerator {
	if prefix == "" {
		prefix = "flow"
	}
	return &SequentialFlowGenerator{prefix: prefix}
}

// Generate returns the next token.
func (g *SequentialFlowGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
