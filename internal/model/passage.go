package model

import (
	"encoding/json"
	"time"
)

// Passage source types.
const (
	SourceTypeDocument = "document"
	SourceTypeMemory   = "memory"
)

// Passage is the atomic retrievable unit: a piece of text with its embedding
// and provenance. Document chunks and pinned conversation memories are both
// stored as passages and are indistinguishable at retrieval time.
// Embedding and Metadata are stored as JSON text for portability.
type Passage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	ConversationID uint      `gorm:"index" json:"conversation_id"` // 0 = standalone
	Content        string    `gorm:"type:text;not null" json:"content"`
	Embedding      string    `gorm:"type:text" json:"-"` // JSON array of float32
	SourceType     string    `gorm:"size:32;not null;index" json:"source_type"`
	SourceID       string    `gorm:"size:256;not null;index" json:"source_id"`
	Metadata       string    `gorm:"type:text" json:"-"` // JSON object
	CreatedAt      time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; nil on parse error.
func (p *Passage) EmbeddingVector() []float32 {
	if p.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(p.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (p *Passage) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		p.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	p.Embedding = string(b)
}

// MetadataMap returns the parsed metadata; empty map when unset or invalid.
func (p *Passage) MetadataMap() map[string]any {
	m := map[string]any{}
	if p.Metadata == "" {
		return m
	}
	_ = json.Unmarshal([]byte(p.Metadata), &m)
	return m
}

// SetMetadata stores the metadata map as JSON.
func (p *Passage) SetMetadata(m map[string]any) {
	if len(m) == 0 {
		p.Metadata = "{}"
		return
	}
	b, _ := json.Marshal(m)
	p.Metadata = string(b)
}
