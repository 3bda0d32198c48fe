package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/younsl/autoprotect/internal/models"
)

// JSONLSink writes one JSON document per line
type JSONLSink struct {
	closer io.Closer
	enc    *json.Encoder
}

// NewJSONLSink writes to w; the caller owns w
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{enc: json.NewEncoder(w)}
}

// OpenJSONLFile opens path for appending. Existing records are never rewritten.
func OpenJSONLFile(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit file %s: %w", path, err)
	}
	sink := NewJSONLSink(f)
	sink.closer = f
	return sink, nil
}

func (s *JSONLSink) Write(_ context.Context, record models.AuditRecord) error {
	if err := s.enc.Encode(record); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

func (s *JSONLSink) Close(context.Context) error {
	if s.closer == nil {
		return nil
	}
	if f, ok := s.closer.(*os.File); ok {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync audit file: %w", err)
		}
	}
	return s.closer.Close()
}
