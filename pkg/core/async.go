package core

import (
	"context"
	"sync"

	"github.com/halldyll/recall-go/pkg/model"
)

// AsyncEngine provides asynchronous engine operations.
//
// It wraps the synchronous Engine and executes operations in separate
// goroutines, returning channels that receive the results when operations
// complete. Wait blocks until every started operation has finished.
//
// The per-session contract of Engine still applies: do not start a
// RecordTurnAsync for a session before the previous one has delivered.
//
// Example:
//
//	async := core.NewAsyncEngine(engine)
//	defer async.Close()
//
//	out := <-async.PrepareContextAsync(ctx, session, "what theme do I prefer?", 0)
//	if out.Error != nil {
//	    log.Fatal(out.Error)
//	}
type AsyncEngine struct {
	*Engine
	wg sync.WaitGroup
}

// NewAsyncEngine wraps an engine.
func NewAsyncEngine(engine *Engine) *AsyncEngine {
	return &AsyncEngine{Engine: engine}
}

// RecordTurnAsync records a turn asynchronously.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - session, userText, assistantText, toolEvents: As for RecordTurn
//
// Returns:
//   - <-chan *TurnOutcome: Channel that receives the result, then closes
func (ae *AsyncEngine) RecordTurnAsync(ctx context.Context, session model.SessionID, userText, assistantText string, toolEvents []model.ToolEvent) <-chan *TurnOutcome {
	resultChan := make(chan *TurnOutcome, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		result, err := ae.RecordTurn(ctx, session, userText, assistantText, toolEvents)
		resultChan <- &TurnOutcome{
			Result: result,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// PrepareContextAsync prepares a context asynchronously.
//
// Returns:
//   - <-chan *ContextOutcome: Channel that receives the result, then closes
func (ae *AsyncEngine) PrepareContextAsync(ctx context.Context, session model.SessionID, userMessage string, recentTurnsHint int) <-chan *ContextOutcome {
	resultChan := make(chan *ContextOutcome, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		pc, err := ae.PrepareContext(ctx, session, userMessage, recentTurnsHint)
		resultChan <- &ContextOutcome{
			Context: pc,
			Error:   err,
		}
		close(resultChan)
	}()

	return resultChan
}

// Wait blocks until all started operations have completed.
func (ae *AsyncEngine) Wait() {
	ae.wg.Wait()
}

// Close waits for pending operations, then closes the engine.
func (ae *AsyncEngine) Close() error {
	ae.Wait()
	return ae.Engine.Close()
}
