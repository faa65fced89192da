package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"swissknife-chat/internal/ai"
	"swissknife-chat/internal/model"
	"swissknife-chat/internal/pkg/chunker"
	"swissknife-chat/internal/pkg/extract"
)

var (
	ErrEmptyDocument    = errors.New("document contains no extractable text")
	ErrUnsupportedFile  = errors.New("unsupported file type")
	ErrDocumentTooLarge = errors.New("document exceeds the upload size limit")
)

// batchEmbedder embeds a batch of chunks in one request.
type batchEmbedder interface {
	EmbedBatch(ctx context.Context, cfg ai.EmbeddingConfig, texts []string) ([][]float32, error)
}

// passageWriter is the vector store surface IngestService writes to.
type passageWriter interface {
	InsertMany(passages []model.Passage) error
}

// IngestService runs the document pipeline: extract text, split it into
// chunks, embed the chunks, and store them as passages owned by the
// uploading user. The whole document is inserted in one batch; a failure at
// any stage leaves the corpus untouched.
type IngestService struct {
	embedder     batchEmbedder
	store        passageWriter
	splitter     *chunker.Splitter
	embeddingCfg ai.EmbeddingConfig
	batchSize    int
	maxBytes     int64
}

func NewIngestService(
	embedder batchEmbedder,
	store passageWriter,
	splitter *chunker.Splitter,
	embeddingCfg ai.EmbeddingConfig,
	batchSize int,
	maxBytes int64,
) *IngestService {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &IngestService{
		embedder:     embedder,
		store:        store,
		splitter:     splitter,
		embeddingCfg: embeddingCfg,
		batchSize:    batchSize,
		maxBytes:     maxBytes,
	}
}

type IngestResult struct {
	SourceID   string `json:"source_id"`
	ChunkCount int    `json:"chunk_count"`
}

// IngestDocument processes one uploaded file for the given owner. The file
// name becomes the passages' SourceID so later uploads of the same name are
// distinguishable only by timestamp metadata.
func (s *IngestService) IngestDocument(ctx context.Context, userID uint, file extract.File) (*IngestResult, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if s.maxBytes > 0 && int64(len(file.Data)) > s.maxBytes {
		return nil, ErrDocumentTooLarge
	}

	text, err := extract.Text(file)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFileType) {
			return nil, ErrUnsupportedFile
		}
		if errors.Is(err, extract.ErrEmptyExtraction) {
			return nil, ErrEmptyDocument
		}
		return nil, fmt.Errorf("extract %s: %w", file.Name, err)
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	uploadedAt := time.Now().UTC().Format(time.RFC3339)
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Name)), ".")
	passages := make([]model.Passage, 0, len(chunks))
	for i, chunk := range chunks {
		passage := model.Passage{
			UserID:     userID,
			Content:    chunk,
			SourceType: model.SourceTypeDocument,
			SourceID:   file.Name,
		}
		passage.SetEmbedding(vectors[i])
		passage.SetMetadata(map[string]any{
			"uploaded_at": uploadedAt,
			"file_type":   fileType,
		})
		passages = append(passages, passage)
	}

	if err := s.store.InsertMany(passages); err != nil {
		return nil, fmt.Errorf("store passages for %s: %w", file.Name, err)
	}

	return &IngestResult{SourceID: file.Name, ChunkCount: len(chunks)}, nil
}

// embedChunks embeds all chunks in fixed-size batches and returns vectors
// aligned with the chunk slice.
func (s *IngestService) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch, err := s.embedder.EmbedBatch(ctx, s.embeddingCfg, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d to %d: %w", start, end-1, err)
		}
		vectors = append(vectors, batch...)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count %d does not match chunk count %d", len(vectors), len(chunks))
	}
	return vectors, nil
}
