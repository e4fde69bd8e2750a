package extract

import (
	"context"
	"fmt"
	"strings"
)

type ImageTranscriber interface {
	TranscribeImage(ctx context.Context, data []byte, mime string) (string, error)
}

type DocumentExtractor interface {
	ExtractDocument(ctx context.Context, data []byte, contentType string) (string, error)
}

// Service classifies an input by its declared content type and routes it to
// the matching extractor. Unsupported types yield a placeholder marker
// instead of an error so a single odd file never sinks the whole job.
type Service struct {
	images    ImageTranscriber
	documents DocumentExtractor
}

func NewService(images ImageTranscriber, documents DocumentExtractor) *Service {
	return &Service{
		images:    images,
		documents: documents,
	}
}

func (s *Service) ExtractText(ctx context.Context, key, contentType string, data []byte) (string, error) {
	mime := contentType
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(strings.ToLower(mime))

	switch {
	case strings.HasPrefix(mime, "image/"):
		text, err := s.images.TranscribeImage(ctx, data, mime)
		if err != nil {
			return "", fmt.Errorf("transcribe image: %w", err)
		}
		return text, nil

	case isDocument(mime):
		text, err := s.documents.ExtractDocument(ctx, data, mime)
		if err != nil {
			return "", fmt.Errorf("extract document: %w", err)
		}
		return text, nil

	case strings.HasPrefix(mime, "text/") || mime == "application/json":
		return string(data), nil

	default:
		return fmt.Sprintf("[Content from unsupported file type: %s]", key), nil
	}
}

func isDocument(mime string) bool {
	switch mime {
	case "application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/rtf":
		return true
	}
	return false
}
