package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swissknife-chat/internal/model"
)

type fakePassageSource struct {
	rows    []model.Passage
	listErr error
}

func (f *fakePassageSource) CreateBatch(passages []model.Passage) error {
	f.rows = append(f.rows, passages...)
	return nil
}

func (f *fakePassageSource) ListByUserID(userID uint) ([]model.Passage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Passage
	for _, p := range f.rows {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePassageSource) ListByUserIDAndConversationID(userID, conversationID uint) ([]model.Passage, error) {
	var out []model.Passage
	for _, p := range f.rows {
		if p.UserID == userID && p.ConversationID == conversationID {
			out = append(out, p)
		}
	}
	return out, nil
}

func passage(userID uint, content string, vec []float32) model.Passage {
	p := model.Passage{UserID: userID, Content: content, SourceType: model.SourceTypeDocument, SourceID: "test.txt"}
	p.SetEmbedding(vec)
	return p
}

func passageInConversation(userID, conversationID uint, content string, vec []float32) model.Passage {
	p := passage(userID, content, vec)
	p.ConversationID = conversationID
	return p
}

func TestInsertManyRejectsInvalidPassages(t *testing.T) {
	store := New(&fakePassageSource{})

	err := store.InsertMany([]model.Passage{passage(0, "no owner", []float32{1})})
	assert.ErrorIs(t, err, ErrInvalidPassage)

	err = store.InsertMany([]model.Passage{passage(1, "   ", []float32{1})})
	assert.ErrorIs(t, err, ErrInvalidPassage)

	err = store.InsertMany([]model.Passage{{UserID: 1, Content: "no embedding"}})
	assert.ErrorIs(t, err, ErrInvalidPassage)
}

func TestInsertManyRejectsWholeBatch(t *testing.T) {
	source := &fakePassageSource{}
	store := New(source)

	err := store.InsertMany([]model.Passage{
		passage(1, "fine", []float32{1, 0}),
		passage(0, "broken", []float32{0, 1}),
	})
	assert.ErrorIs(t, err, ErrInvalidPassage)
	assert.Empty(t, source.rows, "no partial insert")
}

func TestSearchNeverCrossesOwners(t *testing.T) {
	source := &fakePassageSource{}
	store := New(source)
	require.NoError(t, store.InsertMany([]model.Passage{
		passage(1, "alice likes tea", []float32{1, 0}),
		passage(2, "bob likes coffee", []float32{1, 0}),
	}))

	matches, err := store.Search(Query{Vector: []float32{1, 0}, UserID: 1, Threshold: 0.1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint(1), matches[0].Passage.UserID)
}

func TestSearchRequiresOwner(t *testing.T) {
	store := New(&fakePassageSource{})
	_, err := store.Search(Query{Vector: []float32{1}})
	assert.Error(t, err)
}

func TestSearchThresholdIsStrict(t *testing.T) {
	source := &fakePassageSource{}
	store := New(source)
	require.NoError(t, store.InsertMany([]model.Passage{
		passage(1, "identical", []float32{1, 0}),
		passage(1, "orthogonal", []float32{0, 1}),
	}))

	// similarity of "identical" is exactly 1.0: threshold 1.0 must exclude it
	matches, err := store.Search(Query{Vector: []float32{1, 0}, UserID: 1, Threshold: 1.0})
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = store.Search(Query{Vector: []float32{1, 0}, UserID: 1, Threshold: 0.99})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "identical", matches[0].Passage.Content)
}

func TestSearchRaisingThresholdNeverAddsResults(t *testing.T) {
	source := &fakePassageSource{}
	store := New(source)
	require.NoError(t, store.InsertMany([]model.Passage{
		passage(1, "a", []float32{1, 0}),
		passage(1, "b", []float32{0.8, 0.6}),
		passage(1, "c", []float32{0, 1}),
	}))

	previous := len(source.rows) + 1
	for _, threshold := range []float32{-1, 0, 0.3, 0.6, 0.9, 1} {
		matches, err := store.Search(Query{Vector: []float32{1, 0}, UserID: 1, Threshold: threshold})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(matches), previous)
		previous = len(matches)
	}
}

func TestSearchOrdersByDescendingSimilarity(t *testing.T) {
	source := &fakePassageSource{}
	store := New(source)
	require.NoError(t, store.InsertMany([]model.Passage{
		passage(1, "far", []float32{0.2, 0.98}),
		passage(1, "near", []float32{1, 0.01}),
		passage(1, "middle", []float32{0.7, 0.7}),
	}))

	matches, err := store.Search(Query{Vector: []float32{1, 0}, UserID: 1, Threshold: 0})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "near", matches[0].Passage.Content)
	assert.Equal(t, "middle", matches[1].Passage.Content)
	assert.Equal(t, "far", matches[2].Passage.Content)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	source := &fakePassageSource{}
	store := New(source)
	require.NoError(t, store.InsertMany([]model.Passage{
		passage(1, "first", []float32{1, 0}),
		passage(1, "second", []float32{2, 0}), // same direction, same cosine
	}))

	matches, err := store.Search(Query{Vector: []float32{1, 0}, UserID: 1, Threshold: 0})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].Passage.Content)
	assert.Equal(t, "second", matches[1].Passage.Content)
}

func TestSearchLimit(t *testing.T) {
	source := &fakePassageSource{}
	store := New(source)
	var batch []model.Passage
	for i := 0; i < 10; i++ {
		batch = append(batch, passage(1, "p", []float32{1, 0}))
	}
	require.NoError(t, store.InsertMany(batch))

	matches, err := store.Search(Query{Vector: []float32{1, 0}, UserID: 1, Threshold: 0, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	// default limit
	matches, err = store.Search(Query{Vector: []float32{1, 0}, UserID: 1, Threshold: 0})
	require.NoError(t, err)
	assert.Len(t, matches, DefaultLimit)
}

func TestSearchConversationScope(t *testing.T) {
	source := &fakePassageSource{}
	store := New(source)
	require.NoError(t, store.InsertMany([]model.Passage{
		passageInConversation(1, 7, "scoped", []float32{1, 0}),
		passage(1, "standalone", []float32{1, 0}),
	}))

	matches, err := store.Search(Query{Vector: []float32{1, 0}, UserID: 1, Threshold: 0, ConversationID: 7})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "scoped", matches[0].Passage.Content)
}

func TestSearchEmptyResultIsNotAnError(t *testing.T) {
	store := New(&fakePassageSource{})
	matches, err := store.Search(Query{Vector: []float32{1, 0}, UserID: 1, Threshold: 0.3})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{0, 0}))
}
