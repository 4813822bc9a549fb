package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/pkg/textx"
)

const (
	docxBodyPart  = "word/document.xml"
	docxMediaDir  = "word/media/"
	noDocxImages  = "No images found in the document."
	maxDocxImages = 32
)

// TextSource returns the raw text of a document without calling a model.
type TextSource interface {
	ExtractText(ctx context.Context, name string, data []byte) (string, error)
}

// DOCX concatenates the raw document text with one batched multimodal
// description of the embedded images. Both sub-steps run concurrently and
// either failing fails the file.
type DOCX struct {
	Text  TextSource
	Model domain.Multimodal
}

// Extract implements domain.Extractor.
func (d DOCX) Extract(ctx context.Context, f domain.SourceFile) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	src := d.Text
	if src == nil {
		src = ZipText{}
	}

	var raw, images string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, err = src.ExtractText(gctx, f.Name, f.Data)
		if err != nil {
			return fmt.Errorf("docx text: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		images, err = d.describeImages(gctx, zr)
		if err != nil {
			return fmt.Errorf("docx images: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}
	return "Text from doc file:" + raw + "Images in doc file:" + images, nil
}

func (d DOCX) describeImages(ctx context.Context, zr *zip.Reader) (string, error) {
	media := mediaFiles(zr)
	if len(media) == 0 {
		return noDocxImages, nil
	}
	if len(media) > maxDocxImages {
		media = media[:maxDocxImages]
	}
	parts := make([]domain.Part, 0, len(media)+1)
	for _, zf := range media {
		data, err := readZipFile(zf)
		if err != nil {
			return "", err
		}
		parts = append(parts, domain.Part{MIMEType: imageMIME(zf.Name, data), Data: data})
	}
	parts = append(parts, domain.Part{Text: docxImagesInstruction})
	return d.Model.Generate(ctx, parts)
}

// mediaFiles returns the embedded raster images in document order
// (image1, image2, ..., image10).
func mediaFiles(zr *zip.Reader) []*zip.File {
	var out []*zip.File
	for _, zf := range zr.File {
		if !strings.HasPrefix(zf.Name, docxMediaDir) || zf.FileInfo().IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(zf.Name)) {
		case ".png", ".jpg", ".jpeg", ".webp":
			out = append(out, zf)
		}
	}
	stem := func(zf *zip.File) string { return strings.TrimSuffix(zf.Name, path.Ext(zf.Name)) }
	sort.Slice(out, func(i, j int) bool {
		a, b := stem(out[i]), stem(out[j])
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return out
}

func readZipFile(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// ZipText reads the body text of a DOCX archive locally. Paragraphs are
// separated by blank lines; tabs and breaks are kept.
type ZipText struct{}

// ExtractText implements TextSource.
func (ZipText) ExtractText(_ context.Context, _ string, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	for _, zf := range zr.File {
		if zf.Name != docxBodyPart {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return "", err
		}
		defer func() { _ = rc.Close() }()
		return documentText(rc)
	}
	return "", errors.New("word/document.xml not found")
}

func documentText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return textx.NormalizeLines(b.String()), nil
}
