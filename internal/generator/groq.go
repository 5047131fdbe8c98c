package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	DefaultGroqEndpoint = "https://api.groq.com/openai/v1/chat/completions"
	DefaultGroqModel    = "llama-3.3-70b-versatile"
)

const (
	maxRetries = 5
	baseDelay  = 1 * time.Second
	maxDelay   = 30 * time.Second
)

const systemPrompt = `You write prompts for a meme party game.
Reply with ONE short, family-friendly, relatable situation that players will caption with a meme.
Start it with "When" and keep it to a single sentence. No quotes, no hashtags, no emoji, no explanation.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Groq asks an OpenAI-compatible chat completions endpoint for a situation.
type Groq struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
	baseWait time.Duration
}

func NewGroq(apiKey, model, endpoint string, logger *zap.Logger) *Groq {
	if model == "" {
		model = DefaultGroqModel
	}
	if endpoint == "" {
		endpoint = DefaultGroqEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Groq{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
		baseWait: baseDelay,
	}
}

func (g *Groq) Generate(ctx context.Context) (string, error) {
	raw, err := g.callChat(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "Give me a new situation."},
	})
	if err != nil {
		return "", err
	}
	s := cleanSituation(raw)
	if s == "" {
		return "", ErrEmptySituation
	}
	return s, nil
}

func (g *Groq) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.baseWait
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// callChat retries rate limits and transport errors. Any other failure is final.
func (g *Groq) callChat(ctx context.Context, messages []chatMessage) (string, error) {
	buf, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: 1.0,
	})
	if err != nil {
		return "", err
	}

	attempt := 0
	op := func() (string, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(buf))
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			g.logger.Debug("groq rate limited", zap.Int("attempt", attempt))
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return "", fmt.Errorf("rate limited (429), attempt %d/%d: %w", attempt, maxRetries+1, backoff.RetryAfter(secs))
			}
			return "", fmt.Errorf("rate limited (429), attempt %d/%d", attempt, maxRetries+1)
		}
		if resp.StatusCode >= 300 {
			return "", backoff.Permanent(fmt.Errorf("groq error status: %s", resp.Status))
		}

		var cr chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return "", backoff.Permanent(fmt.Errorf("decode groq response: %w", err))
		}
		if len(cr.Choices) == 0 {
			return "", backoff.Permanent(errors.New("no choices returned from groq"))
		}
		return cr.Choices[0].Message.Content, nil
	}

	content, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(g.backOff()),
		backoff.WithMaxTries(maxRetries+1),
	)
	if err != nil {
		return "", fmt.Errorf("groq chat: %w", err)
	}
	return content, nil
}

// cleanSituation strips the code fences and wrapping quotes models like to add.
func cleanSituation(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.Contains(s[:i], " ") {
			s = s[i+1:] // language tag
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}} {
		if len(s) >= 2 && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, q[0]), q[1]))
		}
	}
	return s
}
