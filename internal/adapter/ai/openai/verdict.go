package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

// verdictSchema is the structured output contract sent with every Judge call.
var verdictSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"compliant_result": {
			Type:        jsonschema.String,
			Enum:        domain.Strings(),
			Description: "C (90-100), PC (70-89), WE (50-69) or NC (0-49)",
		},
		"score": {
			Type:        jsonschema.Integer,
			Description: "integer between 0 and 100",
		},
		"remarks": {
			Type:        jsonschema.String,
			Description: "reasoning behind the result and score",
		},
	},
	Required:             []string{"compliant_result", "score", "remarks"},
	AdditionalProperties: false,
}

type verdictWire struct {
	Result  *string  `json:"compliant_result" validate:"required"`
	Score   *float64 `json:"score" validate:"required"`
	Remarks *string  `json:"remarks" validate:"required"`
}

var validate = validator.New()

// ParseVerdict decodes model output into a Verdict. The text must be exactly
// one JSON object with the three contract fields and nothing else; anything
// else fails with *domain.InvalidResponseError carrying raw.
func ParseVerdict(raw string) (domain.Verdict, error) {
	v, err := parseVerdict(raw)
	if err != nil {
		return domain.Verdict{}, domain.NewInvalidResponse(raw, err)
	}
	return v, nil
}

func parseVerdict(raw string) (domain.Verdict, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return domain.Verdict{}, errors.New("empty response")
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	var w verdictWire
	if err := dec.Decode(&w); err != nil {
		return domain.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.Verdict{}, errors.New("trailing data after verdict object")
	}
	if err := validate.Struct(w); err != nil {
		return domain.Verdict{}, fmt.Errorf("verdict fields: %w", err)
	}

	label := domain.Label(*w.Result)
	if !label.Valid() {
		return domain.Verdict{}, fmt.Errorf("compliant_result %q is not one of C, PC, WE, NC", *w.Result)
	}
	score := *w.Score
	if score != math.Trunc(score) {
		return domain.Verdict{}, fmt.Errorf("score %v is not an integer", score)
	}
	if score < domain.MinScore || score > domain.MaxScore {
		return domain.Verdict{}, fmt.Errorf("score %v out of range 0..100", score)
	}
	return domain.Verdict{Result: label, Score: int(score), Remarks: *w.Remarks}, nil
}
