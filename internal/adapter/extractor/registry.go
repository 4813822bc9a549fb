// Package extractor converts evidence files into normalized text. Each
// supported format has its own extractor; Registry dispatches by extension
// and falls back to the declared MIME type.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

// Kind is a supported evidence format.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindDOCX  Kind = "docx"
	KindXLSX  Kind = "xlsx"
	KindImage Kind = "image"
)

var extKinds = map[string]Kind{
	".pdf":  KindPDF,
	".docx": KindDOCX,
	".xlsx": KindXLSX,
	".xlsm": KindXLSX,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
}

var mimeKinds = map[string]Kind{
	"application/pdf": KindPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": KindDOCX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       KindXLSX,
	"application/vnd.ms-excel.sheet.macroenabled.12":                          KindXLSX,
	"image/jpeg": KindImage,
	"image/png":  KindImage,
}

// KindOf resolves the format of a file from its name, then its MIME hint.
func KindOf(name, mimeHint string) (Kind, bool) {
	if k, ok := extKinds[strings.ToLower(filepath.Ext(name))]; ok {
		return k, true
	}
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeHint, ";", 2)[0]))
	k, ok := mimeKinds[mt]
	return k, ok
}

// Registry implements domain.Extractor by delegating to one extractor per
// Kind. Files without inline bytes are fetched from blob storage first.
type Registry struct {
	Blobs      domain.BlobStore
	extractors map[Kind]domain.Extractor
}

// NewRegistry constructs an empty Registry.
func NewRegistry(blobs domain.BlobStore) *Registry {
	return &Registry{Blobs: blobs, extractors: map[Kind]domain.Extractor{}}
}

// Register sets the extractor for k.
func (r *Registry) Register(k Kind, ex domain.Extractor) *Registry {
	r.extractors[k] = ex
	return r
}

// Extract implements domain.Extractor. Unknown formats fail with
// ErrUnsupportedFormat; every other failure wraps ErrExtractionFailure.
func (r *Registry) Extract(ctx context.Context, f domain.SourceFile) (string, error) {
	k, ok := KindOf(f.Name, f.MIMEHint)
	if !ok {
		ext := filepath.Ext(f.Name)
		if ext == "" {
			ext = f.MIMEHint
		}
		return "", fmt.Errorf("%w: %q is not one of pdf, docx, xlsx, xlsm, jpg, jpeg, png", domain.ErrUnsupportedFormat, ext)
	}
	ex, ok := r.extractors[k]
	if !ok {
		return "", fmt.Errorf("%w: no extractor for %s", domain.ErrUnsupportedFormat, k)
	}
	if len(f.Data) == 0 {
		if f.URL == "" || r.Blobs == nil {
			return "", fmt.Errorf("%w: empty file", domain.ErrExtractionFailure)
		}
		data, err := r.Blobs.Get(ctx, f.URL)
		if err != nil {
			return "", fmt.Errorf("%w: fetch: %w", domain.ErrExtractionFailure, err)
		}
		f.Data = data
	}
	text, err := ex.Extract(ctx, f)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedFormat) || errors.Is(err, domain.ErrExtractionFailure) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrExtractionFailure, err)
	}
	return text, nil
}
