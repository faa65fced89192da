package extract

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmptyExtraction     = errors.New("no extractable text in file")
)

// File is an uploaded file pending text extraction.
type File struct {
	Data        []byte
	ContentType string // declared MIME type, may carry parameters
	Name        string
}

const (
	mimePDF  = "application/pdf"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Text returns the plain-text content of the file, dispatching on the
// declared MIME type with a filename-extension fallback for the ambiguous
// text types browsers report inconsistently (.csv, .md, .txt).
// Extraction is deterministic: the same bytes always produce the same text
// or the same error, so failures are terminal and never retried.
func Text(f File) (string, error) {
	text, err := extract(f)
	if err != nil {
		return "", err
	}
	text = normalizeUTF8(text)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyExtraction
	}
	return text, nil
}

func extract(f File) (string, error) {
	mime := strings.ToLower(strings.TrimSpace(f.ContentType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	ext := strings.ToLower(filepath.Ext(f.Name))

	switch {
	case mime == mimePDF || ext == ".pdf":
		return pdfText(f.Data)
	case mime == mimeDocx || ext == ".docx":
		return docxText(f.Data)
	case mime == "text/csv" || ext == ".csv":
		return csvText(f.Data)
	case strings.HasPrefix(mime, "text/") || ext == ".txt" || ext == ".md" || ext == ".markdown":
		return string(f.Data), nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// normalizeUTF8 strips a UTF-8 BOM and replaces invalid byte sequences so
// downstream chunking and embedding always see valid UTF-8.
func normalizeUTF8(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	return strings.ToValidUTF8(s, "\uFFFD")
}
