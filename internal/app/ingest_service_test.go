package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swissknife-chat/internal/ai"
	"swissknife-chat/internal/model"
	"swissknife-chat/internal/pkg/chunker"
	"swissknife-chat/internal/pkg/extract"
)

func newTestIngestService(embedder *fakeEmbedder, store *fakePassageStore) *IngestService {
	return NewIngestService(embedder, store, chunker.New(100, 10), ai.EmbeddingConfig{}, 3, 1<<20)
}

func textFile(name, content string) extract.File {
	return extract.File{Name: name, ContentType: "text/plain", Data: []byte(content)}
}

func TestIngestDocumentStoresPassages(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	store := &fakePassageStore{}
	svc := newTestIngestService(embedder, store)

	result, err := svc.IngestDocument(context.Background(), 7, textFile("notes.txt", "short document"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", result.SourceID)
	assert.Equal(t, 1, result.ChunkCount)

	require.Len(t, store.inserted, 1)
	p := store.inserted[0]
	assert.Equal(t, uint(7), p.UserID)
	assert.Equal(t, model.SourceTypeDocument, p.SourceType)
	assert.Equal(t, "notes.txt", p.SourceID)
	assert.Equal(t, "short document", p.Content)
	assert.Equal(t, []float32{0.1, 0.2}, p.EmbeddingVector())

	meta := p.MetadataMap()
	assert.Equal(t, "txt", meta["file_type"])
	assert.NotEmpty(t, meta["uploaded_at"])
}

func TestIngestDocumentBatchesEmbeddings(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	store := &fakePassageStore{}
	svc := newTestIngestService(embedder, store)

	// ~8 chunks at chunk size 100, forcing several batches of 3
	text := strings.Repeat("some sentence of filler content here. ", 20)
	result, err := svc.IngestDocument(context.Background(), 7, textFile("big.md", text))
	require.NoError(t, err)
	require.Greater(t, result.ChunkCount, 3)

	for _, size := range embedder.batchSizes {
		assert.LessOrEqual(t, size, 3)
	}
	total := 0
	for _, size := range embedder.batchSizes {
		total += size
	}
	assert.Equal(t, result.ChunkCount, total)
	assert.Len(t, store.inserted, result.ChunkCount)
}

func TestIngestDocumentUnsupportedType(t *testing.T) {
	store := &fakePassageStore{}
	svc := newTestIngestService(&fakeEmbedder{vector: []float32{1}}, store)

	_, err := svc.IngestDocument(context.Background(), 7, extract.File{
		Name: "photo.png", ContentType: "image/png", Data: []byte{0x89, 0x50},
	})
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	assert.Empty(t, store.inserted)
}

func TestIngestDocumentEmpty(t *testing.T) {
	svc := newTestIngestService(&fakeEmbedder{vector: []float32{1}}, &fakePassageStore{})

	_, err := svc.IngestDocument(context.Background(), 7, textFile("empty.txt", "   \n\t  "))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngestDocumentTooLarge(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	svc := NewIngestService(embedder, &fakePassageStore{}, chunker.New(100, 10), ai.EmbeddingConfig{}, 3, 10)

	_, err := svc.IngestDocument(context.Background(), 7, textFile("big.txt", "this is more than ten bytes"))
	assert.ErrorIs(t, err, ErrDocumentTooLarge)
	assert.Empty(t, embedder.inputs)
}

func TestIngestDocumentEmbedFailureLeavesStoreUntouched(t *testing.T) {
	store := &fakePassageStore{}
	svc := newTestIngestService(&fakeEmbedder{err: assert.AnError}, store)

	_, err := svc.IngestDocument(context.Background(), 7, textFile("notes.txt", "content"))
	assert.Error(t, err)
	assert.Empty(t, store.inserted)
}

func TestIngestDocumentEmbeddingCountMismatch(t *testing.T) {
	store := &fakePassageStore{}
	svc := newTestIngestService(&fakeEmbedder{vector: []float32{1}, short: true}, store)

	_, err := svc.IngestDocument(context.Background(), 7, textFile("notes.txt", "content"))
	assert.Error(t, err)
	assert.Empty(t, store.inserted)
}

func TestIngestDocumentRequiresOwner(t *testing.T) {
	svc := newTestIngestService(&fakeEmbedder{vector: []float32{1}}, &fakePassageStore{})

	_, err := svc.IngestDocument(context.Background(), 0, textFile("notes.txt", "content"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}
