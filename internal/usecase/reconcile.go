package usecase

import (
	"slices"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

// IsDuplicateUpload reports whether files has exactly the same file-name set
// as the most recent upload history entry of prior.
func IsDuplicateUpload(prior domain.ControlRecord, files []domain.FileRef) bool {
	latest, ok := prior.LatestUpload()
	if !ok || len(files) == 0 {
		return false
	}
	return slices.Equal(domain.FileNameSet(latest.Files), domain.FileNameSet(files))
}

// Reconcile turns a Judge verdict into the verdict to persist.
//
// The label is first corrected to the band of the raw score. A duplicate
// submission then pins the score to the prior score; any other submission
// takes max(raw, prior). The label is derived again from the final score.
func Reconcile(v domain.Verdict, prior domain.ControlRecord, duplicate bool) domain.FinalVerdict {
	raw := domain.ClampScore(v.Score)
	label := domain.FromScore(raw)
	if v.Result != label {
		recordAdjustment("label_band")
	}

	priorScore := domain.ClampScore(prior.Score)
	score := raw
	switch {
	case duplicate:
		if score != priorScore {
			recordAdjustment("duplicate_upload")
		}
		score = priorScore
	case raw < priorScore:
		recordAdjustment("monotonic_floor")
		score = priorScore
	}
	label = domain.FromScore(score)

	return domain.FinalVerdict{
		Result:     label,
		Score:      score,
		Remarks:    v.Remarks,
		RawResult:  v.Result,
		RawScore:   v.Score,
		PriorScore: priorScore,
		Duplicate:  duplicate,
	}
}

// ReconcileFor builds the reconcile step used inside the State Updater
// transaction, where prior is the row-locked record.
func ReconcileFor(v domain.Verdict, files []domain.FileRef) func(domain.ControlRecord) (domain.FinalVerdict, error) {
	return func(prior domain.ControlRecord) (domain.FinalVerdict, error) {
		return Reconcile(v, prior, IsDuplicateUpload(prior, files)), nil
	}
}
