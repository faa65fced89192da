package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"swissknife-chat/internal/ai"
	"swissknife-chat/internal/vectorstore"
)

const (
	noDocumentsSentinel = "No relevant documents found"
	searchErrorSentinel = "Error searching the knowledge base"
)

// queryEmbedder turns a search query into a vector.
type queryEmbedder interface {
	Embed(ctx context.Context, cfg ai.EmbeddingConfig, input string) ([]float32, error)
}

// passageSearcher is the vector store surface SearchService reads from.
type passageSearcher interface {
	Search(query vectorstore.Query) ([]vectorstore.Match, error)
}

// SearchService answers knowledge-base queries for the chat tool loop. It
// embeds the query, runs an owner-scoped similarity search, and renders the
// hits as plain text for the model. Failures degrade to sentinel strings so
// a broken search can never abort a chat turn.
type SearchService struct {
	embedder     queryEmbedder
	store        passageSearcher
	embeddingCfg ai.EmbeddingConfig
	topK         int
	threshold    float32
}

func NewSearchService(
	embedder queryEmbedder,
	store passageSearcher,
	embeddingCfg ai.EmbeddingConfig,
	topK int,
	threshold float32,
) *SearchService {
	if topK <= 0 {
		topK = vectorstore.DefaultLimit
	}
	return &SearchService{
		embedder:     embedder,
		store:        store,
		embeddingCfg: embeddingCfg,
		topK:         topK,
		threshold:    threshold,
	}
}

func (s *SearchService) Retrieve(ctx context.Context, userID uint, query string) string {
	query = strings.TrimSpace(query)
	if userID == 0 || query == "" {
		return invalidQuerySentinel
	}

	vector, err := s.embedder.Embed(ctx, s.embeddingCfg, query)
	if err != nil {
		log.Printf("knowledge search: embed query for user %d failed: %v", userID, err)
		return searchErrorSentinel
	}

	matches, err := s.store.Search(vectorstore.Query{
		Vector:    vector,
		UserID:    userID,
		Limit:     s.topK,
		Threshold: s.threshold,
	})
	if err != nil {
		log.Printf("knowledge search: user %d: %v", userID, err)
		return searchErrorSentinel
	}
	if len(matches) == 0 {
		return noDocumentsSentinel
	}

	return formatMatches(matches)
}

// formatMatches renders hits most relevant first, numbered so the model can
// cite them.
func formatMatches(matches []vectorstore.Match) string {
	var b strings.Builder
	for i, match := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, match.Passage.Content)
	}
	return b.String()
}
