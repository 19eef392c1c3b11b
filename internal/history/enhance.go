package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// Enhancer rewrites a raw door-to-door transcript into a readable dialogue.
type Enhancer interface {
	Enhance(ctx context.Context, transcript string) (string, error)
}

const enhancePrompt = `Tu restructures des transcriptions brutes de conversations de porte-à-porte en français.
Règles:
- Identifie les interlocuteurs et préfixe chaque réplique par **Commercial:** ou **Prospect:** (ou le nom si connu).
- Corrige la ponctuation et les coupures de mots dues à la transcription automatique.
- Ne résume pas, n'invente rien, ne supprime aucune information.
- Rends uniquement la transcription restructurée, sans commentaire.`

// LLMEnhancer implements Enhancer against an OpenAI-compatible chat API.
type LLMEnhancer struct {
	client   oai.Client
	model    string
	attempts int
	log      zerolog.Logger
}

// NewLLMEnhancer builds an enhancer. baseURL may be empty for the default
// OpenAI endpoint; local OpenAI-compatible servers set it instead.
func NewLLMEnhancer(apiKey, model, baseURL string, log zerolog.Logger) (*LLMEnhancer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("history: enhancer api key must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("history: enhancer model must not be empty")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	return &LLMEnhancer{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		attempts: 3,
		log:      log.With().Str("component", "history.enhancer").Logger(),
	}, nil
}

// Enhance sends the transcript through the chat API, retrying transient
// failures. An empty completion counts as a failure so a flaky model never
// wipes a transcript.
func (e *LLMEnhancer) Enhance(ctx context.Context, transcript string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, err := e.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
			Model: e.model,
			Messages: []oai.ChatCompletionMessageParamUnion{
				oai.SystemMessage(enhancePrompt),
				oai.UserMessage(transcript),
			},
		})
		if err != nil {
			lastErr = err
			e.log.Warn().Err(err).Int("attempt", attempt).Msg("enhancement request failed")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("history: empty completion")
			continue
		}
		out := strings.TrimSpace(resp.Choices[0].Message.Content)
		if out == "" {
			lastErr = fmt.Errorf("history: blank completion")
			continue
		}
		return out, nil
	}
	return "", fmt.Errorf("history: enhance after %d attempts: %w", e.attempts, lastErr)
}
