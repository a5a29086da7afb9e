package core

import (
	"context"

	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/storage"
)

// MemoryBatch is one page of a MemoriesStream.
type MemoryBatch struct {
	// Memories is a batch of stored items, newest first.
	Memories []*model.MemoryItem

	// BatchIndex is the index of this batch (0-based).
	BatchIndex int

	// IsLastBatch indicates whether this is the last batch.
	IsLastBatch bool

	// Error contains any error that occurred during streaming (if any).
	Error error
}

// MemoriesStream streams the stored memories of a session in batches,
// newest first. The zero session streams every session.
//
// Expired items that have not been swept yet are included.
//
// Example:
//
//	for batch := range engine.MemoriesStream(ctx, session, 100) {
//	    if batch.Error != nil {
//	        log.Fatal(batch.Error)
//	    }
//	    for _, item := range batch.Memories {
//	        fmt.Println(item.Kind, item.Content)
//	    }
//	}
func (e *Engine) MemoriesStream(ctx context.Context, session model.SessionID, batchSize int) <-chan *MemoryBatch {
	resultChan := make(chan *MemoryBatch, 1)
	if batchSize <= 0 {
		batchSize = 100
	}

	go func() {
		defer close(resultChan)

		offset := 0
		for batchIndex := 0; ; batchIndex++ {
			if err := ctx.Err(); err != nil {
				resultChan <- &MemoryBatch{BatchIndex: batchIndex, Error: err}
				return
			}

			items, err := e.vectors.GetAll(ctx, &storage.GetAllOptions{
				SessionID: session,
				Limit:     batchSize,
				Offset:    offset,
			})
			if err != nil {
				resultChan <- &MemoryBatch{
					BatchIndex: batchIndex,
					Error:      NewMemoryError("MemoriesStream", ErrStorage, err),
				}
				return
			}

			isLastBatch := len(items) < batchSize
			if len(items) > 0 || batchIndex == 0 {
				select {
				case resultChan <- &MemoryBatch{Memories: items, BatchIndex: batchIndex, IsLastBatch: isLastBatch}:
				case <-ctx.Done():
					return
				}
			}
			if isLastBatch {
				return
			}
			offset += len(items)
		}
	}()

	return resultChan
}
