package usecase

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

// UploadService stores evidence files in blob storage.
type UploadService struct {
	Blobs domain.BlobStore
	Now   func() time.Time
}

// NewUploadService constructs an UploadService with the given blob store.
func NewUploadService(b domain.BlobStore) UploadService {
	return UploadService{Blobs: b, Now: time.Now}
}

// Store uploads every file concurrently under a "<unixMillis>-<name>" key and
// returns the file references together with the extractor inputs, both in
// submission order. Any storage failure fails the whole batch.
func (s UploadService) Store(ctx domain.Context, files []domain.UploadFile) ([]domain.FileRef, []domain.SourceFile, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	refs := make([]domain.FileRef, len(files))
	srcs := make([]domain.SourceFile, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			ct := f.ContentType
			if ct == "" {
				ct = mimeFromName(f.Name)
			}
			key := ObjectKey(now(), f.Name)
			url, err := s.Blobs.Put(gctx, key, f.Data, ct)
			if err != nil {
				return fmt.Errorf("%w: store %s: %w", domain.ErrPersistenceFailure, f.Name, err)
			}
			refs[i] = domain.FileRef{FileName: f.Name, FileURL: url}
			srcs[i] = domain.SourceFile{Name: f.Name, URL: url, MIMEHint: ct, Data: f.Data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return refs, srcs, nil
}

// InMemory turns uploads into extractor inputs without storing them.
func InMemory(files []domain.UploadFile) []domain.SourceFile {
	out := make([]domain.SourceFile, len(files))
	for i, f := range files {
		ct := f.ContentType
		if ct == "" {
			ct = mimeFromName(f.Name)
		}
		out[i] = domain.SourceFile{Name: f.Name, MIMEHint: ct, Data: f.Data}
	}
	return out
}

// ObjectKey builds the storage key for an uploaded file.
func ObjectKey(t time.Time, name string) string {
	return strconv.FormatInt(t.UnixMilli(), 10) + "-" + filepath.Base(name)
}

func mimeFromName(n string) string {
	switch strings.ToLower(filepath.Ext(n)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
