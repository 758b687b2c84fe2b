// Package graph executes ordered batches of parameterized Cypher statements
// inside a single write transaction.
package graph

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyBatch is returned when a transaction carries no statements.
var ErrEmptyBatch = errors.New("graph: empty statement batch")

type Statement struct {
	Query  string
	Params map[string]any
}

// Batch accumulates statements in execution order.
type Batch struct {
	statements []Statement
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Add(query string, params map[string]any) *Batch {
	if params == nil {
		params = map[string]any{}
	}
	b.statements = append(b.statements, Statement{Query: query, Params: params})
	return b
}

func (b *Batch) Len() int {
	return len(b.statements)
}

func (b *Batch) Statements() []Statement {
	out := make([]Statement, len(b.statements))
	copy(out, b.statements)
	return out
}

// Summary aggregates the write counters of every statement of a transaction.
type Summary struct {
	Statements           int
	NodesDeleted         int
	RelationshipsDeleted int
	PropertiesSet        int
}

// Executor runs statements in order; all succeed or the transaction is rolled back.
type Executor interface {
	ExecuteTransaction(ctx context.Context, statements []Statement) (Summary, error)
}

// Recorder is an Executor that stores every batch it receives.
type Recorder struct {
	mu      sync.Mutex
	batches [][]Statement
	Err     error
}

func (r *Recorder) ExecuteTransaction(ctx context.Context, statements []Statement) (Summary, error) {
	if len(statements) == 0 {
		return Summary{}, ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := make([]Statement, len(statements))
	copy(batch, statements)
	r.batches = append(r.batches, batch)
	if r.Err != nil {
		return Summary{}, r.Err
	}
	return Summary{Statements: len(statements)}, nil
}

// Batches returns the recorded transactions in arrival order.
func (r *Recorder) Batches() [][]Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]Statement, len(r.batches))
	copy(out, r.batches)
	return out
}
