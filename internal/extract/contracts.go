// Package extract maps the document-analysis backend's typed field bag onto entity.ExtractedFields.
package extract

import (
	"context"
	"errors"
	"io"
)

// ErrModelNotConfigured is returned when no analysis model id is available.
var ErrModelNotConfigured = errors.New("analysis model id not configured")

// Document is one document recognized by the backend.
type Document struct {
	DocType    string
	Confidence float64
	Fields     map[string]Value
}

// Result is the backend's answer for one analyze call.
type Result struct {
	ModelID   string
	Documents []Document
}

// Analyzer is the document-analysis backend as the adapter sees it.
type Analyzer interface {
	Analyze(ctx context.Context, content io.Reader, modelID string) (*Result, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, content io.Reader, modelID string) (*Result, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, content io.Reader, modelID string) (*Result, error) {
	return f(ctx, content, modelID)
}
