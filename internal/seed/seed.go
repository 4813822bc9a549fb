// Package seed imports control catalogs from YAML files.
package seed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

// Importer stores catalog rows for a user.
type Importer interface {
	Import(ctx domain.Context, userID, controlType string, recs []domain.ControlRecord) ([]domain.ControlRecord, error)
}

type catalogYAML struct {
	UserID      string        `yaml:"user_id"`
	ControlType string        `yaml:"control_type"`
	Controls    []controlYAML `yaml:"controls"`
}

type controlYAML struct {
	ControlID       string `yaml:"control_id"`
	IMEX            string `yaml:"imex"`
	Factory         string `yaml:"factory"`
	Process         string `yaml:"process"`
	SubProcess      string `yaml:"sub_process"`
	Risk            string `yaml:"risk"`
	Header          string `yaml:"control_header"`
	Description     string `yaml:"control_description"`
	Frequency       string `yaml:"frequency"`
	PolicyReference string `yaml:"corporate_policy_reference"`
	TestGuidance    string `yaml:"suggested_test_guidance"`
	SunriseRef      string `yaml:"sap_sunrise_racm_control"`
	TurboRef        string `yaml:"sap_turbo_racm_control"`
	Relevance       string `yaml:"relevance"`
	Compliance      string `yaml:"compliance"`
}

func (c controlYAML) record() domain.ControlRecord {
	return domain.ControlRecord{
		ControlID:       strings.TrimSpace(c.ControlID),
		IMEX:            c.IMEX,
		Factory:         c.Factory,
		Process:         c.Process,
		SubProcess:      c.SubProcess,
		Risk:            c.Risk,
		Header:          c.Header,
		Description:     c.Description,
		Frequency:       c.Frequency,
		PolicyReference: c.PolicyReference,
		TestGuidance:    c.TestGuidance,
		SunriseRef:      c.SunriseRef,
		TurboRef:        c.TurboRef,
		Relevance:       c.Relevance,
		Compliance:      c.Compliance,
	}
}

// Options override the owner fields declared in the file.
type Options struct {
	UserID      string
	ControlType string
}

// Catalog is a parsed seed file.
type Catalog struct {
	UserID      string
	ControlType string
	Records     []domain.ControlRecord
}

// Load reads and parses a catalog file. Paths outside the working directory
// are refused unless SEED_ALLOW_ABSPATHS=1.
func Load(path string, opts Options) (Catalog, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Catalog{}, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return Catalog{}, err
	}
	abs = filepath.Clean(abs)
	wd = filepath.Clean(wd)
	if os.Getenv("SEED_ALLOW_ABSPATHS") != "1" {
		if !strings.HasPrefix(abs, wd+string(os.PathSeparator)) && abs != wd {
			return Catalog{}, fmt.Errorf("disallowed path: %s", abs)
		}
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Catalog{}, fmt.Errorf("seed file not found: %s", path)
		}
		return Catalog{}, err
	}
	return Parse(b, opts)
}

// Parse decodes catalog YAML. Either a `controls:` document or a bare list
// of controls is accepted.
func Parse(b []byte, opts Options) (Catalog, error) {
	var doc catalogYAML
	if err := yaml.Unmarshal(b, &doc); err != nil {
		var ls []controlYAML
		if err2 := yaml.Unmarshal(b, &ls); err2 != nil {
			return Catalog{}, fmt.Errorf("yaml parse: %w", err)
		}
		doc.Controls = ls
	}
	cat := Catalog{UserID: doc.UserID, ControlType: doc.ControlType}
	if opts.UserID != "" {
		cat.UserID = opts.UserID
	}
	if opts.ControlType != "" {
		cat.ControlType = opts.ControlType
	}
	if cat.UserID == "" || cat.ControlType == "" {
		return Catalog{}, fmt.Errorf("%w: user_id and control_type are required", domain.ErrInvalidArgument)
	}

	seen := make(map[string]struct{}, len(doc.Controls))
	for i, c := range doc.Controls {
		rec := c.record()
		if rec.ControlID == "" {
			return Catalog{}, fmt.Errorf("%w: controls[%d].control_id is required", domain.ErrInvalidArgument, i)
		}
		// Later duplicates win in the database anyway; keep the first.
		if _, dup := seen[rec.ControlID]; dup {
			continue
		}
		seen[rec.ControlID] = struct{}{}
		cat.Records = append(cat.Records, rec)
	}
	if len(cat.Records) == 0 {
		return Catalog{}, fmt.Errorf("%w: no controls in catalog", domain.ErrInvalidArgument)
	}
	return cat, nil
}

// SeedFile loads path and imports it through imp.
func SeedFile(ctx domain.Context, imp Importer, path string, opts Options) (int, error) {
	cat, err := Load(path, opts)
	if err != nil {
		return 0, err
	}
	recs, err := imp.Import(ctx, cat.UserID, cat.ControlType, cat.Records)
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	return len(recs), nil
}
