package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"swissknife-chat/internal/ai"
	"swissknife-chat/internal/model"
)

var (
	ErrMessageEmpty = errors.New("message content is empty")
	ErrLLMConfig    = errors.New("llm config is invalid")
)

const (
	searchToolName = "search_knowledge_base"

	invalidQuerySentinel = "invalid query"
	unknownToolSentinel  = "unknown tool"

	defaultMaxToolSteps = 3
)

// conversationGetter is the slice of the conversation repository the chat
// and memory services need for ownership checks.
type conversationGetter interface {
	GetByIDAndUserID(conversationID, userID uint) (*model.Conversation, error)
}

// messageWindow reads conversation history for prompts, the history API,
// and the pin flow's length check.
type messageWindow interface {
	ListByConversationID(conversationID uint, limit int) ([]model.Message, error)
	ListRecentByConversationID(conversationID uint, limit int) ([]model.Message, error)
	CountByConversationID(conversationID uint) (int64, error)
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, conversationID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, conversationID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, conversationID uint) error
	MarkDirty(ctx context.Context, conversationID uint) error
	IsDirty(ctx context.Context, conversationID uint) (bool, error)
}

// llmClient is the language-model gateway surface the orchestrator drives.
type llmClient interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, req ai.CompletionRequest) (*ai.Completion, error)
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, req ai.CompletionRequest, onChunk func(string) error) (*ai.Completion, error)
}

// knowledgeSearcher executes the knowledge-base tool. Implementations never
// return an error: retrieval failure degrades to a sentinel string so a
// chat turn cannot be aborted by a broken search.
type knowledgeSearcher interface {
	Retrieve(ctx context.Context, userID uint, query string) string
}

// ChatService orchestrates one conversational turn: persist the user's
// message (best effort), run the model with the knowledge-base tool bound to
// the requesting owner, stream the answer, and persist it (best effort).
type ChatService struct {
	conversationRepo conversationGetter
	messageRepo      messageWindow
	publisher        AsyncMessagePublisher
	historyCache     HistoryCache
	llmClient        llmClient
	retriever        knowledgeSearcher
	defaultLLM       ai.ChatConfig
	maxContext       int
	maxToolSteps     int
}

func NewChatService(
	conversationRepo conversationGetter,
	messageRepo messageWindow,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	llmClient llmClient,
	retriever knowledgeSearcher,
	defaultLLM ai.ChatConfig,
	maxContext int,
	maxToolSteps int,
) *ChatService {
	if maxContext <= 0 {
		maxContext = 20
	}
	if maxToolSteps <= 0 {
		maxToolSteps = defaultMaxToolSteps
	}
	return &ChatService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		publisher:        publisher,
		historyCache:     historyCache,
		llmClient:        llmClient,
		retriever:        retriever,
		defaultLLM:       defaultLLM,
		maxContext:       maxContext,
		maxToolSteps:     maxToolSteps,
	}
}

type SendMessageInput struct {
	UserID         uint
	Username       string
	ConversationID uint
	Content        string
	LLM            LLMOverride
}

type LLMOverride struct {
	BaseURL string
	APIKey  string
	Model   string
}

type LLMRequestLog struct {
	BaseURL      string `json:"base_url"`
	Model        string `json:"model"`
	APIKeyMasked string `json:"api_key_masked"`
}

type SendMessageResult struct {
	Messages   []model.Message `json:"messages"`
	LLMRequest LLMRequestLog   `json:"llm_request"`
}

// SendMessage runs a full turn without streaming. The tool-call loop is the
// same as the streaming path; only the delivery differs.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	cfg, messages, err := s.prepareTurn(ctx, input)
	if err != nil {
		return nil, err
	}

	userMessage := model.Message{
		ConversationID: input.ConversationID,
		UserID:         input.UserID,
		Role:           "user",
		Content:        strings.TrimSpace(input.Content),
		CreatedAt:      time.Now(),
	}
	s.persistBestEffort(ctx, userMessage)

	full, err := s.runTurn(ctx, cfg, messages, input.UserID, nil)
	if err != nil {
		return nil, err
	}
	full = finalAnswer(full)

	assistantMessage := model.Message{
		ConversationID: input.ConversationID,
		UserID:         input.UserID,
		Role:           "assistant",
		Content:        full,
		CreatedAt:      time.Now(),
	}
	s.persistBestEffort(ctx, assistantMessage)

	return &SendMessageResult{
		Messages: []model.Message{userMessage, assistantMessage},
		LLMRequest: LLMRequestLog{
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			APIKeyMasked: maskSecret(cfg.APIKey),
		},
	}, nil
}

// StreamMessage runs a turn and forwards answer chunks to onChunk as the
// model produces them. ctx is the request context: a disconnected caller
// cancels generation.
func (s *ChatService) StreamMessage(
	ctx context.Context,
	input SendMessageInput,
	onChunk func(string) error,
) (string, error) {
	cfg, messages, err := s.prepareTurn(ctx, input)
	if err != nil {
		return "", err
	}

	s.persistBestEffort(ctx, model.Message{
		ConversationID: input.ConversationID,
		UserID:         input.UserID,
		Role:           "user",
		Content:        strings.TrimSpace(input.Content),
		CreatedAt:      time.Now(),
	})

	full, err := s.runTurn(ctx, cfg, messages, input.UserID, onChunk)
	if err != nil {
		return "", err
	}
	full = finalAnswer(full)

	s.persistBestEffort(ctx, model.Message{
		ConversationID: input.ConversationID,
		UserID:         input.UserID,
		Role:           "assistant",
		Content:        full,
		CreatedAt:      time.Now(),
	})

	return full, nil
}

func (s *ChatService) GetHistory(userID, conversationID uint, limit int) ([]model.Message, error) {
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

	ctx := context.Background()
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, conversationID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, conversationID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListByConversationID(conversationID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, conversationID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, conversationID, messages)
		}
	}
	return messages, nil
}

// prepareTurn validates the input, checks conversation ownership, resolves
// the model config, invalidates the history cache, and builds the prompt.
func (s *ChatService) prepareTurn(ctx context.Context, input SendMessageInput) (ai.ChatConfig, []ai.ChatMessage, error) {
	if input.UserID == 0 || input.ConversationID == 0 {
		return ai.ChatConfig{}, nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return ai.ChatConfig{}, nil, ErrMessageEmpty
	}

	conversation, err := s.conversationRepo.GetByIDAndUserID(input.ConversationID, input.UserID)
	if err != nil {
		return ai.ChatConfig{}, nil, err
	}
	if conversation == nil {
		return ai.ChatConfig{}, nil, ErrConversationNotFound
	}

	cfg, err := s.resolveLLM(input.LLM)
	if err != nil {
		return ai.ChatConfig{}, nil, err
	}

	messages, err := s.buildPromptMessages(input.ConversationID, input.Username, content)
	if err != nil {
		return ai.ChatConfig{}, nil, err
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.ConversationID)
		_ = s.historyCache.DeleteHistory(ctx, input.ConversationID)
	}

	return cfg, messages, nil
}

// runTurn drives the tool-call loop. Each round the model either answers or
// requests tool calls; tool results are fed back and the loop continues.
// After maxToolSteps tool rounds the final round is issued without tools,
// forcing an answer from what the model already has.
func (s *ChatService) runTurn(
	ctx context.Context,
	cfg ai.ChatConfig,
	messages []ai.ChatMessage,
	userID uint,
	onChunk func(string) error,
) (string, error) {
	tools := []ai.Tool{knowledgeBaseTool()}

	for step := 0; step < s.maxToolSteps; step++ {
		completion, err := s.complete(ctx, cfg, ai.CompletionRequest{Messages: messages, Tools: tools}, onChunk)
		if err != nil {
			return "", err
		}
		if len(completion.ToolCalls) == 0 {
			return completion.Text, nil
		}

		messages = append(messages, ai.ChatMessage{
			Role:      "assistant",
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})
		for _, call := range completion.ToolCalls {
			messages = append(messages, ai.ChatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    s.executeToolCall(ctx, userID, call),
			})
		}
	}

	// Tool budget exhausted: no tools offered, the model must answer.
	completion, err := s.complete(ctx, cfg, ai.CompletionRequest{Messages: messages}, onChunk)
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}

func (s *ChatService) complete(
	ctx context.Context,
	cfg ai.ChatConfig,
	req ai.CompletionRequest,
	onChunk func(string) error,
) (*ai.Completion, error) {
	if onChunk == nil {
		return s.llmClient.Complete(ctx, cfg, req)
	}
	return s.llmClient.StreamComplete(ctx, cfg, req, onChunk)
}

// executeToolCall validates and runs one model-requested tool call. The
// return value goes back to the model as the tool result; malformed calls
// yield sentinel strings, never errors, so the turn always continues.
func (s *ChatService) executeToolCall(ctx context.Context, userID uint, call ai.ToolCall) string {
	if call.Function.Name != searchToolName {
		return unknownToolSentinel
	}

	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return invalidQuerySentinel
	}

	// userID comes from the authenticated session, never from the model:
	// the tool can only search the calling owner's corpus.
	return s.retriever.Retrieve(ctx, userID, args.Query)
}

// persistBestEffort hands a message to the persistence queue and swallows
// any failure. Losing a history row is recoverable; interrupting the live
// answer is not. This is the only place persistence failures are ignored.
func (s *ChatService) persistBestEffort(ctx context.Context, msg model.Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		log.Printf("best-effort persist of %s message in conversation %d failed: %v", msg.Role, msg.ConversationID, err)
	}
}

func (s *ChatService) buildPromptMessages(conversationID uint, username, currentUserInput string) ([]ai.ChatMessage, error) {
	recent, err := s.messageRepo.ListRecentByConversationID(conversationID, s.maxContext)
	if err != nil {
		return nil, err
	}

	messages := make([]ai.ChatMessage, 0, len(recent)+2)
	messages = append(messages, ai.ChatMessage{
		Role:    "system",
		Content: systemPrompt(username),
	})
	for _, item := range recent {
		role := item.Role
		if role == "" {
			role = "user"
		}
		messages = append(messages, ai.ChatMessage{
			Role:    role,
			Content: item.Content,
		})
	}
	messages = append(messages, ai.ChatMessage{
		Role:    "user",
		Content: currentUserInput,
	})
	return messages, nil
}

func (s *ChatService) resolveLLM(override LLMOverride) (ai.ChatConfig, error) {
	cfg := s.defaultLLM
	if strings.TrimSpace(override.BaseURL) != "" {
		cfg.BaseURL = strings.TrimSpace(override.BaseURL)
	}
	if strings.TrimSpace(override.APIKey) != "" {
		cfg.APIKey = strings.TrimSpace(override.APIKey)
	}
	if strings.TrimSpace(override.Model) != "" {
		cfg.Model = strings.TrimSpace(override.Model)
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		return ai.ChatConfig{}, ErrLLMConfig
	}
	return cfg, nil
}

func knowledgeBaseTool() ai.Tool {
	return ai.Tool{
		Type: "function",
		Function: ai.ToolFunction{
			Name:        searchToolName,
			Description: "Search the knowledge base for relevant information",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query to find relevant documents",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

func systemPrompt(username string) string {
	name := strings.TrimSpace(username)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("You are a helpful assistant for Swiss Army Knife AI. "+
		"When users ask questions, search the knowledge base for relevant information. "+
		"Always search before answering if the question might relate to uploaded documents. "+
		"Base your answers on the search results when available. "+
		"Give concise answers that directly answer what the user is asking for.\n\n"+
		"The user's name is %s.", name)
}

func finalAnswer(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "The model returned an empty response."
	}
	return text
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
