package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swissknife-chat/internal/ai"
	"swissknife-chat/internal/model"
)

func newTestMemoryService(llm *fakeLLM, embedder *fakeEmbedder, store *fakePassageStore, messages []model.Message) *MemoryService {
	conversations := &fakeConversationGetter{
		conversations: map[uint]*model.Conversation{
			3: {ID: 3, UserID: 7, Title: "Trip planning"},
		},
	}
	window := &fakeMessageWindow{messages: messages}
	return NewMemoryService(conversations, window, llm, embedder, store, testChatConfig(), ai.EmbeddingConfig{}, 50)
}

func pinnableTranscript() []model.Message {
	return []model.Message{
		{Role: "user", Content: "I prefer window seats and I'm vegetarian."},
		{Role: "assistant", Content: "Noted, I'll keep that in mind for bookings."},
	}
}

func TestPinConversationStoresSummary(t *testing.T) {
	llm := &fakeLLM{completions: []*ai.Completion{{Text: "User prefers window seats and vegetarian meals."}}}
	embedder := &fakeEmbedder{vector: []float32{0.5, 0.5}}
	store := &fakePassageStore{}
	svc := newTestMemoryService(llm, embedder, store, pinnableTranscript())

	result, err := svc.PinConversation(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, "User prefers window seats and vegetarian meals.", result.Summary)

	require.Len(t, store.inserted, 1)
	p := store.inserted[0]
	assert.Equal(t, uint(7), p.UserID)
	assert.Equal(t, uint(3), p.ConversationID)
	assert.Equal(t, model.SourceTypeMemory, p.SourceType)
	assert.Equal(t, fmt.Sprintf("summary-%d", 3), p.SourceID)
	assert.Equal(t, result.Summary, p.Content)
	assert.Equal(t, []float32{0.5, 0.5}, p.EmbeddingVector())

	meta := p.MetadataMap()
	assert.Equal(t, "v1", meta["summary_version"])
	assert.NotEmpty(t, meta["pinned_at"])
}

func TestPinConversationSendsTranscriptToArchivist(t *testing.T) {
	llm := &fakeLLM{completions: []*ai.Completion{{Text: "summary"}}}
	svc := newTestMemoryService(llm, &fakeEmbedder{vector: []float32{1}}, &fakePassageStore{}, pinnableTranscript())

	_, err := svc.PinConversation(context.Background(), 7, 3)
	require.NoError(t, err)

	require.Len(t, llm.requests, 1)
	prompt := llm.requests[0].Messages
	require.Len(t, prompt, 2)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Contains(t, prompt[0].Content, noMemoryValue)
	assert.Contains(t, prompt[1].Content, "window seats")
	assert.Contains(t, prompt[1].Content, `"role":"assistant"`)
}

func TestPinConversationTooShort(t *testing.T) {
	llm := &fakeLLM{}
	store := &fakePassageStore{}
	svc := newTestMemoryService(llm, &fakeEmbedder{vector: []float32{1}}, store, []model.Message{
		{Role: "user", Content: "hello"},
	})

	result, err := svc.PinConversation(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.NotEmpty(t, result.Reason)
	assert.Empty(t, llm.requests)
	assert.Empty(t, store.inserted)
}

func TestPinConversationNoMemoryValue(t *testing.T) {
	llm := &fakeLLM{completions: []*ai.Completion{{Text: noMemoryValue}}}
	embedder := &fakeEmbedder{vector: []float32{1}}
	store := &fakePassageStore{}
	svc := newTestMemoryService(llm, embedder, store, pinnableTranscript())

	result, err := svc.PinConversation(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, embedder.inputs)
	assert.Empty(t, store.inserted)
}

func TestPinConversationDecoratedNoMemoryValue(t *testing.T) {
	for _, text := range []string{
		noMemoryValue + ".",
		"I looked carefully: " + noMemoryValue,
	} {
		llm := &fakeLLM{completions: []*ai.Completion{{Text: text}}}
		embedder := &fakeEmbedder{vector: []float32{1}}
		store := &fakePassageStore{}
		svc := newTestMemoryService(llm, embedder, store, pinnableTranscript())

		result, err := svc.PinConversation(context.Background(), 7, 3)
		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Empty(t, embedder.inputs)
		assert.Empty(t, store.inserted)
	}
}

func TestPinConversationForeignConversation(t *testing.T) {
	svc := newTestMemoryService(&fakeLLM{}, &fakeEmbedder{vector: []float32{1}}, &fakePassageStore{}, pinnableTranscript())

	_, err := svc.PinConversation(context.Background(), 99, 3)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestPinConversationSummarizerFailure(t *testing.T) {
	llm := &fakeLLM{err: assert.AnError}
	store := &fakePassageStore{}
	svc := newTestMemoryService(llm, &fakeEmbedder{vector: []float32{1}}, store, pinnableTranscript())

	_, err := svc.PinConversation(context.Background(), 7, 3)
	assert.Error(t, err)
	assert.Empty(t, store.inserted)
}
