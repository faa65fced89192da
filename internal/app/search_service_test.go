package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swissknife-chat/internal/ai"
	"swissknife-chat/internal/model"
	"swissknife-chat/internal/vectorstore"
)

func newTestSearchService(embedder *fakeEmbedder, store *fakePassageStore) *SearchService {
	return NewSearchService(embedder, store, ai.EmbeddingConfig{}, 5, 0.3)
}

func TestRetrieveFormatsMatches(t *testing.T) {
	store := &fakePassageStore{matches: []vectorstore.Match{
		{Passage: model.Passage{Content: "first passage"}, Similarity: 0.9},
		{Passage: model.Passage{Content: "second passage"}, Similarity: 0.8},
	}}
	svc := newTestSearchService(&fakeEmbedder{vector: []float32{1, 0}}, store)

	got := svc.Retrieve(context.Background(), 7, "query")
	assert.Equal(t, "[1] first passage\n\n[2] second passage", got)
}

func TestRetrieveScopesQueryToOwner(t *testing.T) {
	store := &fakePassageStore{}
	svc := newTestSearchService(&fakeEmbedder{vector: []float32{1, 0}}, store)

	svc.Retrieve(context.Background(), 42, "anything")

	require.Len(t, store.queries, 1)
	q := store.queries[0]
	assert.Equal(t, uint(42), q.UserID)
	assert.Equal(t, 5, q.Limit)
	assert.InDelta(t, 0.3, float64(q.Threshold), 1e-6)
	assert.Equal(t, []float32{1, 0}, q.Vector)
}

func TestRetrieveNoMatches(t *testing.T) {
	svc := newTestSearchService(&fakeEmbedder{vector: []float32{1, 0}}, &fakePassageStore{})

	got := svc.Retrieve(context.Background(), 7, "nothing matches this")
	assert.Equal(t, noDocumentsSentinel, got)
}

func TestRetrieveInvalidQuery(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	svc := newTestSearchService(embedder, &fakePassageStore{})

	assert.Equal(t, invalidQuerySentinel, svc.Retrieve(context.Background(), 7, "   "))
	assert.Equal(t, invalidQuerySentinel, svc.Retrieve(context.Background(), 0, "valid query"))
	assert.Empty(t, embedder.inputs)
}

func TestRetrieveEmbedFailure(t *testing.T) {
	svc := newTestSearchService(&fakeEmbedder{err: assert.AnError}, &fakePassageStore{})

	got := svc.Retrieve(context.Background(), 7, "query")
	assert.Equal(t, searchErrorSentinel, got)
}

func TestRetrieveSearchFailure(t *testing.T) {
	store := &fakePassageStore{searchErr: assert.AnError}
	svc := newTestSearchService(&fakeEmbedder{vector: []float32{1, 0}}, store)

	got := svc.Retrieve(context.Background(), 7, "query")
	assert.Equal(t, searchErrorSentinel, got)
}
