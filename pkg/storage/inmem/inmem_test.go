package inmem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halldyll/recall-go/pkg/storage"
	"github.com/halldyll/recall-go/pkg/storage/inmem"
	"github.com/halldyll/recall-go/pkg/storage/storagetest"
)

func TestTranscriptStore(t *testing.T) {
	storagetest.RunTranscriptStore(t, func(t *testing.T) storage.TranscriptStore {
		store, err := inmem.NewTranscriptStore()
		require.NoError(t, err)
		return store
	})
}

func TestSummaryStore(t *testing.T) {
	storagetest.RunSummaryStore(t, func(t *testing.T) storage.SummaryStore {
		return inmem.NewSummaryStore()
	})
}
