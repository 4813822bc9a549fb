package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	backoff "github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/miporis/compliance-evaluator/internal/config"
	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/observability"
	"github.com/miporis/compliance-evaluator/pkg/textx"
)

const judgeSystemPrompt = "You are a compliance auditor. Respond with a single JSON object and nothing else."

// Judge implements domain.Judge with a schema-constrained chat completion.
type Judge struct {
	cfg        config.Config
	client     *openai.Client
	model      string
	structured bool
	retries    int
	up         *observability.Upstream
}

// NewJudge constructs a Judge from configuration.
func NewJudge(cfg config.Config) *Judge {
	return &Judge{
		cfg:        cfg,
		client:     newClient(cfg),
		model:      cfg.JudgeModel,
		structured: cfg.JudgeStructuredOutput,
		retries:    cfg.JudgeMaxRetries,
		up:         observability.NewUpstream("openai", cfg.OpenAIBaseURL, 0),
	}
}

// Model returns the judge model name.
func (j *Judge) Model() string { return j.model }

func (j *Judge) request(prompt string) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: j.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if j.structured {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "compliance_verdict",
				Schema: &verdictSchema,
				Strict: true,
			},
		}
	} else {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return req
}

// Judge sends prompt and parses the verdict. Output that violates the
// contract fails with *domain.InvalidResponseError and is never retried.
// Transport failures are retried only when JUDGE_MAX_RETRIES > 0.
func (j *Judge) Judge(ctx context.Context, prompt string) (domain.Verdict, error) {
	if j.cfg.OpenAIAPIKey == "" {
		return domain.Verdict{}, fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	req := j.request(prompt)
	lg := observability.LoggerFromContext(ctx)

	var verdict domain.Verdict
	op := func() error {
		return j.up.Do(ctx, "judge", func(callCtx context.Context) error {
			resp, err := j.client.CreateChatCompletion(callCtx, req)
			if err != nil {
				if !transient(err) {
					return backoff.Permanent(err)
				}
				lg.Warn("judge call failed", slog.String("model", j.model), slog.Int("status", statusOf(err)), slog.Any("error", err))
				return err
			}
			msg, err := firstChoice(resp)
			if err != nil {
				return backoff.Permanent(domain.NewInvalidResponse("", err))
			}
			if msg.Refusal != "" {
				return backoff.Permanent(domain.NewInvalidResponse(msg.Refusal, errors.New("model refused")))
			}
			lg.Debug("judge response",
				slog.String("model", j.model),
				slog.Int("prompt_tokens", resp.Usage.PromptTokens),
				slog.Int("completion_tokens", resp.Usage.CompletionTokens),
				slog.String("body", textx.Truncate(msg.Content, 512)))
			v, err := ParseVerdict(msg.Content)
			if err != nil {
				return backoff.Permanent(err)
			}
			verdict = v
			return nil
		})
	}

	var err error
	if j.retries > 0 {
		maxElapsed, initial, maxInterval, mult := j.cfg.GetAIBackoffConfig()
		expo := backoff.NewExponentialBackOff()
		expo.MaxElapsedTime = maxElapsed
		expo.InitialInterval = initial
		expo.MaxInterval = maxInterval
		expo.Multiplier = mult
		err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(expo, uint64(j.retries)), ctx))
	} else {
		err = op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
	}
	if err != nil {
		var ire *domain.InvalidResponseError
		if errors.As(err, &ire) {
			return domain.Verdict{}, err
		}
		return domain.Verdict{}, fmt.Errorf("op=openai.judge: %w", classify(err))
	}
	return verdict, nil
}
