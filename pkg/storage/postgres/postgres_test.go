package postgres_test

import (
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halldyll/recall-go/pkg/storage"
	"github.com/halldyll/recall-go/pkg/storage/postgres"
	"github.com/halldyll/recall-go/pkg/storage/storagetest"
)

// newClient connects to the database named by POSTGRES_TEST_HOST and
// friends, or skips. Each call uses fresh tables.
func newClient(t *testing.T) *postgres.Client {
	t.Helper()
	host := os.Getenv("POSTGRES_TEST_HOST")
	if host == "" {
		t.Skip("POSTGRES_TEST_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("POSTGRES_TEST_PORT"))
	if port == 0 {
		port = 5432
	}

	suffix := time.Now().UnixNano()
	client, err := postgres.NewClient(&postgres.Config{
		Host:               host,
		Port:               port,
		User:               os.Getenv("POSTGRES_TEST_USER"),
		Password:           os.Getenv("POSTGRES_TEST_PASSWORD"),
		DBName:             os.Getenv("POSTGRES_TEST_DB"),
		TranscriptTable:    fmt.Sprintf("t_transcript_%d", suffix),
		SummaryTable:       fmt.Sprintf("t_summary_%d", suffix),
		MemoryTable:        fmt.Sprintf("t_items_%d", suffix),
		EmbeddingModelDims: storagetest.Dims,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStores(t *testing.T) {
	storagetest.RunTranscriptStore(t, func(t *testing.T) storage.TranscriptStore {
		return newClient(t).Transcripts()
	})
	storagetest.RunSummaryStore(t, func(t *testing.T) storage.SummaryStore {
		return newClient(t).Summaries()
	})
	storagetest.RunVectorStore(t, func(t *testing.T) storage.VectorStore {
		return newClient(t).Vectors()
	})
}
