package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"swissknife-chat/internal/ai"
	"swissknife-chat/internal/model"
)

const (
	// noMemoryValue is what the archivist model answers when a conversation
	// holds nothing worth keeping.
	noMemoryValue = "NO_MEMORY_VALUE"

	archivistPrompt = "You are an archivist. Summarize the key facts, decisions, and user " +
		"preferences from the following conversation transcript into a short paragraph. " +
		"Keep only information that would be useful in future conversations. " +
		"If the conversation contains nothing worth remembering, reply with exactly " +
		noMemoryValue + " and nothing else."

	summaryVersion = "v1"
)

// memoryCompleter is the non-streaming model surface the summarizer needs.
type memoryCompleter interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, req ai.CompletionRequest) (*ai.Completion, error)
}

// MemoryService distills a conversation into a summary passage so later
// conversations can retrieve it through the knowledge base.
type MemoryService struct {
	conversationRepo conversationGetter
	messageRepo      messageWindow
	llmClient        memoryCompleter
	embedder         queryEmbedder
	store            passageWriter
	llmCfg           ai.ChatConfig
	embeddingCfg     ai.EmbeddingConfig
	transcriptLimit  int
}

func NewMemoryService(
	conversationRepo conversationGetter,
	messageRepo messageWindow,
	llmClient memoryCompleter,
	embedder queryEmbedder,
	store passageWriter,
	llmCfg ai.ChatConfig,
	embeddingCfg ai.EmbeddingConfig,
	transcriptLimit int,
) *MemoryService {
	if transcriptLimit <= 0 {
		transcriptLimit = 50
	}
	return &MemoryService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		llmClient:        llmClient,
		embedder:         embedder,
		store:            store,
		llmCfg:           llmCfg,
		embeddingCfg:     embeddingCfg,
		transcriptLimit:  transcriptLimit,
	}
}

type PinResult struct {
	Skipped bool   `json:"skipped"`
	Summary string `json:"summary,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// PinConversation summarizes the conversation and stores the summary as a
// memory passage. A too-short conversation or a worthless one is skipped,
// not an error; the result says which.
func (s *MemoryService) PinConversation(ctx context.Context, userID, conversationID uint) (*PinResult, error) {
	if userID == 0 || conversationID == 0 {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	count, err := s.messageRepo.CountByConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	if count < 2 {
		return &PinResult{Skipped: true, Reason: "conversation too short to pin"}, nil
	}

	messages, err := s.messageRepo.ListRecentByConversationID(conversationID, s.transcriptLimit)
	if err != nil {
		return nil, err
	}

	summary, err := s.summarize(ctx, messages)
	if err != nil {
		return nil, err
	}
	// Containment, not equality: models decorate the sentinel with
	// punctuation or prose, and a decorated sentinel must still skip.
	if summary == "" || strings.Contains(summary, noMemoryValue) {
		return &PinResult{Skipped: true, Reason: "conversation has no memorable content"}, nil
	}

	vector, err := s.embedder.Embed(ctx, s.embeddingCfg, summary)
	if err != nil {
		return nil, fmt.Errorf("embed summary for conversation %d: %w", conversationID, err)
	}

	passage := model.Passage{
		UserID:         userID,
		ConversationID: conversationID,
		Content:        summary,
		SourceType:     model.SourceTypeMemory,
		SourceID:       fmt.Sprintf("summary-%d", conversationID),
	}
	passage.SetEmbedding(vector)
	passage.SetMetadata(map[string]any{
		"pinned_at":       time.Now().UTC().Format(time.RFC3339),
		"summary_version": summaryVersion,
	})

	if err := s.store.InsertMany([]model.Passage{passage}); err != nil {
		return nil, fmt.Errorf("store summary for conversation %d: %w", conversationID, err)
	}

	return &PinResult{Summary: summary}, nil
}

func (s *MemoryService) summarize(ctx context.Context, messages []model.Message) (string, error) {
	transcript, err := renderTranscript(messages)
	if err != nil {
		return "", err
	}

	completion, err := s.llmClient.Complete(ctx, s.llmCfg, ai.CompletionRequest{
		Messages: []ai.ChatMessage{
			{Role: "system", Content: archivistPrompt},
			{Role: "user", Content: transcript},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	return strings.TrimSpace(completion.Text), nil
}

// renderTranscript serializes the transcript as JSON so the archivist sees
// roles and contents unambiguously.
func renderTranscript(messages []model.Message) (string, error) {
	type entry struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	entries := make([]entry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, entry{Role: m.Role, Content: m.Content})
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}
	return string(b), nil
}
