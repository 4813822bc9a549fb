package extractor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

// PDF passes the document straight to the multimodal model.
type PDF struct {
	Model domain.Multimodal
}

// Extract implements domain.Extractor.
func (p PDF) Extract(ctx context.Context, f domain.SourceFile) (string, error) {
	return p.Model.Generate(ctx, []domain.Part{
		{MIMEType: "application/pdf", Data: f.Data},
		{Text: pdfInstruction},
	})
}

// Image captions one image with the multimodal model.
type Image struct {
	Model domain.Multimodal
}

// Extract implements domain.Extractor.
func (i Image) Extract(ctx context.Context, f domain.SourceFile) (string, error) {
	return i.Model.Generate(ctx, []domain.Part{
		{MIMEType: imageMIME(f.Name, f.Data), Data: f.Data},
		{Text: imageInstruction},
	})
}

// imageMIME prefers the file extension and falls back to content sniffing.
func imageMIME(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	}
	return mimetype.Detect(data).String()
}
