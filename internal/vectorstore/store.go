package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"swissknife-chat/internal/model"
)

const DefaultLimit = 5

var ErrInvalidPassage = errors.New("invalid passage")

// PassageSource is the persistence surface the store needs. Satisfied by
// repository.PassageRepository; tests substitute a fake.
type PassageSource interface {
	CreateBatch(passages []model.Passage) error
	ListByUserID(userID uint) ([]model.Passage, error)
	ListByUserIDAndConversationID(userID, conversationID uint) ([]model.Passage, error)
}

// Query is one similarity search. UserID is mandatory: every search is
// scoped to a single owner's corpus. ConversationID optionally narrows the
// search to one conversation's passages.
type Query struct {
	Vector         []float32
	UserID         uint
	Limit          int
	Threshold      float32
	ConversationID uint
}

// Match is a passage with its similarity to the query vector.
type Match struct {
	Passage    model.Passage `json:"passage"`
	Similarity float32       `json:"similarity"`
}

// Store persists embedded passages and ranks them by cosine similarity.
// Scoring runs in process over the owner's rows, exact rather than
// approximate; corpora here are per-user and small enough for that.
type Store struct {
	passages PassageSource
}

func New(passages PassageSource) *Store {
	return &Store{passages: passages}
}

// InsertMany stores a batch of passages in one write. Each passage must
// carry an owner, non-empty content, and an embedding; the batch is rejected
// whole on the first invalid entry so a file never half-indexes.
func (s *Store) InsertMany(passages []model.Passage) error {
	for i := range passages {
		p := &passages[i]
		if p.UserID == 0 || strings.TrimSpace(p.Content) == "" || len(p.EmbeddingVector()) == 0 {
			return fmt.Errorf("%w: passage %d", ErrInvalidPassage, i)
		}
	}
	return s.passages.CreateBatch(passages)
}

// Search returns the owner's passages with similarity strictly above the
// threshold, most similar first, at most Limit entries. Ties keep insertion
// order. An empty result is not an error.
func (s *Store) Search(q Query) ([]Match, error) {
	if q.UserID == 0 {
		return nil, fmt.Errorf("search requires an owner")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var (
		candidates []model.Passage
		err        error
	)
	if q.ConversationID != 0 {
		candidates, err = s.passages.ListByUserIDAndConversationID(q.UserID, q.ConversationID)
	} else {
		candidates, err = s.passages.ListByUserID(q.UserID)
	}
	if err != nil {
		return nil, err
	}

	return rank(candidates, q.Vector, q.Threshold, limit), nil
}

// rank scores candidates against the query vector, keeps those strictly
// above threshold, and returns the top limit in descending similarity.
func rank(candidates []model.Passage, vector []float32, threshold float32, limit int) []Match {
	matches := make([]Match, 0, len(candidates))
	for i := range candidates {
		similarity := CosineSimilarity(vector, candidates[i].EmbeddingVector())
		if similarity > threshold {
			matches = append(matches, Match{Passage: candidates[i], Similarity: similarity})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Mismatched or zero-length vectors score 0 so a malformed row can
// never outrank real content.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
