package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

func TestFromScore_Bands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score int
		want  domain.Label
	}{
		{-5, domain.LabelNonCompliant},
		{0, domain.LabelNonCompliant},
		{49, domain.LabelNonCompliant},
		{50, domain.LabelWeakEvidence},
		{69, domain.LabelWeakEvidence},
		{70, domain.LabelPartiallyCompliant},
		{89, domain.LabelPartiallyCompliant},
		{90, domain.LabelCompliant},
		{100, domain.LabelCompliant},
		{140, domain.LabelCompliant},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("score_%d", tt.score), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, domain.FromScore(tt.score))
		})
	}
}

func TestFromScore_EveryScoreHasExactlyOneBand(t *testing.T) {
	t.Parallel()
	counts := map[domain.Label]int{}
	for s := 0; s <= 100; s++ {
		counts[domain.FromScore(s)]++
	}
	assert.Equal(t, 11, counts[domain.LabelCompliant])
	assert.Equal(t, 20, counts[domain.LabelPartiallyCompliant])
	assert.Equal(t, 20, counts[domain.LabelWeakEvidence])
	assert.Equal(t, 50, counts[domain.LabelNonCompliant])
}

func TestParseLabel(t *testing.T) {
	t.Parallel()
	l, err := domain.ParseLabel(" pc ")
	require.NoError(t, err)
	assert.Equal(t, domain.LabelPartiallyCompliant, l)

	_, err = domain.ParseLabel("X")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestInvalidResponseError_MatchesSentinelAndKeepsRaw(t *testing.T) {
	t.Parallel()
	cause := errors.New("invalid character 'S'")
	err := fmt.Errorf("judge: %w", domain.NewInvalidResponse("Sure! Here's the JSON: {}", cause))

	assert.ErrorIs(t, err, domain.ErrInvalidResponseFormat)
	assert.ErrorIs(t, err, cause)
	raw, ok := domain.RawResponse(err)
	require.True(t, ok)
	assert.Equal(t, "Sure! Here's the JSON: {}", raw)

	_, ok = domain.RawResponse(errors.New("other"))
	assert.False(t, ok)
}

func TestApplyCatalogDefaults(t *testing.T) {
	t.Parallel()

	rec := domain.ControlRecord{ControlID: "ELC.01.04", Compliance: "y", Score: 10}
	rec.ApplyCatalogDefaults()
	assert.Equal(t, "Y", rec.Relevance)
	assert.Equal(t, 100, rec.Score)
	assert.Equal(t, domain.LabelCompliant, rec.Result)
	assert.NotNil(t, rec.UploadHistory)

	fresh := domain.ControlRecord{ControlID: "P2P.01.01"}
	fresh.ApplyCatalogDefaults()
	assert.Equal(t, "N", fresh.Compliance)
	assert.Equal(t, 0, fresh.Score)
	assert.Equal(t, domain.LabelNonCompliant, fresh.Result)
}

func TestFileNameSet(t *testing.T) {
	t.Parallel()
	got := domain.FileNameSet([]domain.FileRef{{FileName: "b.pdf"}, {FileName: "a.png"}, {FileName: "b.pdf"}})
	assert.Equal(t, []string{"a.png", "b.pdf"}, got)
}
