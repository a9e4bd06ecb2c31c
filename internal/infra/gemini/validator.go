// Package gemini grades free-form lesson answers with a Gemini model when local grading cannot decide.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"dialogue-lesson-service/internal/domain"
)

const systemPrompt = `You are an English tutor checking one reply of a learner inside a dialogue lesson.
Decide whether the reply is an appropriate, grammatically acceptable English answer to the prompt.
Minor typos are acceptable. Replies in another language are incorrect.
Write "feedback" in the interface language given by the user message: one or two short sentences.
Write "reactionText" in English: what the dialogue partner says next, in character.
Return only JSON: {"isCorrect": bool, "feedback": string, "reactionText": string}.`

const maxAttempts = 3

// Validator implements remote answer validation on top of the Gemini API.
type Validator struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewValidator(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Validator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{client: client, model: strings.TrimSpace(model), logger: logger}, nil
}

func (v *Validator) Close() error {
	return v.client.Close()
}

func (v *Validator) Validate(ctx context.Context, req domain.RemoteValidationRequest) (domain.RemoteVerdict, error) {
	m := v.client.GenerativeModel(v.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	parts := []genai.Part{genai.Text(userPrompt(req))}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			v.logger.Warn("gemini validate attempt failed",
				zap.Int("attempt", attempt),
				zap.String("lesson_id", req.LessonID),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return domain.RemoteVerdict{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return parseVerdict(firstText(resp))
	}
	return domain.RemoteVerdict{}, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, lastErr)
}

func userPrompt(req domain.RemoteValidationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Interface language: %s.\n", req.UILang)
	fmt.Fprintf(&b, "Exercise step: %s.\n", req.CurrentStep.String())
	if req.Context != "" {
		fmt.Fprintf(&b, "Prompt:\n%s\n", req.Context)
	}
	fmt.Fprintf(&b, "Learner reply: %q", req.StudentAnswer)
	return b.String()
}

func parseVerdict(txt string) (domain.RemoteVerdict, error) {
	txt = stripCodeFences(txt)
	if txt == "" {
		return domain.RemoteVerdict{}, errors.New("gemini: empty response")
	}
	var out domain.RemoteVerdict
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		return domain.RemoteVerdict{}, fmt.Errorf("gemini: bad JSON: %w", err)
	}
	return out, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func ptrFloat32(v float32) *float32 { return &v }
