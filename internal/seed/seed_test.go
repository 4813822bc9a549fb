package seed_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/seed"
)

const catalog = `
user_id: u-1
control_type: ITGC
controls:
  - control_id: AC-01
    process: Access Management
    control_header: Quarterly access review
    suggested_test_guidance: Obtain the signed review
  - control_id: AC-02
    compliance: "Y"
  - control_id: AC-01
    control_header: duplicate
`

type recordingImporter struct {
	userID, controlType string
	recs                []domain.ControlRecord
	err                 error
}

func (r *recordingImporter) Import(_ context.Context, userID, controlType string, recs []domain.ControlRecord) ([]domain.ControlRecord, error) {
	r.userID, r.controlType, r.recs = userID, controlType, recs
	return recs, r.err
}

func TestParse(t *testing.T) {
	cat, err := seed.Parse([]byte(catalog), seed.Options{})
	require.NoError(t, err)
	assert.Equal(t, "u-1", cat.UserID)
	assert.Equal(t, "ITGC", cat.ControlType)
	require.Len(t, cat.Records, 2)
	assert.Equal(t, "Quarterly access review", cat.Records[0].Header)
	assert.Equal(t, "Obtain the signed review", cat.Records[0].TestGuidance)
	assert.Equal(t, "Y", cat.Records[1].Compliance)
}

func TestParse_OptionsOverrideAndBareList(t *testing.T) {
	cat, err := seed.Parse([]byte("- control_id: X-1\n- control_id: X-2\n"), seed.Options{UserID: "u-9", ControlType: "SOX"})
	require.NoError(t, err)
	assert.Equal(t, "u-9", cat.UserID)
	assert.Equal(t, "SOX", cat.ControlType)
	assert.Len(t, cat.Records, 2)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"no owner":      "controls:\n  - control_id: A\n",
		"missing id":    "user_id: u\ncontrol_type: t\ncontrols:\n  - process: p\n",
		"empty":         "user_id: u\ncontrol_type: t\ncontrols: []\n",
		"not yaml list": "user_id: [\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := seed.Parse([]byte(in), seed.Options{})
			require.Error(t, err)
		})
	}
}

func TestSeedFile(t *testing.T) {
	t.Setenv("SEED_ALLOW_ABSPATHS", "1")
	p := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(p, []byte(catalog), 0o600))

	imp := &recordingImporter{}
	n, err := seed.SeedFile(context.Background(), imp, p, seed.Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "u-1", imp.userID)

	imp.err = errors.New("db down")
	_, err = seed.SeedFile(context.Background(), imp, p, seed.Options{})
	require.ErrorContains(t, err, "db down")
}

func TestLoad_PathGuard(t *testing.T) {
	t.Setenv("SEED_ALLOW_ABSPATHS", "")
	p := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(p, []byte(catalog), 0o600))
	_, err := seed.Load(p, seed.Options{})
	require.ErrorContains(t, err, "disallowed path")

	t.Setenv("SEED_ALLOW_ABSPATHS", "1")
	_, err = seed.Load(filepath.Join(t.TempDir(), "missing.yaml"), seed.Options{})
	require.ErrorContains(t, err, "seed file not found")
}
