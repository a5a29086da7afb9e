package chromem_test

import (
	"testing"

	"github.com/halldyll/recall-go/pkg/storage"
	"github.com/halldyll/recall-go/pkg/storage/chromem"
	"github.com/halldyll/recall-go/pkg/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.RunVectorStore(t, func(t *testing.T) storage.VectorStore {
		return chromem.New(&chromem.Config{EmbeddingModelDims: storagetest.Dims})
	})
}
