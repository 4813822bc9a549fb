package usecase

import "github.com/miporis/compliance-evaluator/internal/adapter/observability"

func recordAdjustment(reason string) {
	observability.ScoreAdjustmentsTotal.WithLabelValues(reason).Inc()
}

func recordEvaluation(outcome string) {
	observability.EvaluationsTotal.WithLabelValues(outcome).Inc()
}

func recordExtraction(format, status string) {
	observability.ExtractionsTotal.WithLabelValues(format, status).Inc()
}
