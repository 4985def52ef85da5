package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/quota"
)

const defaultGeminiBase = "https://generativelanguage.googleapis.com"

// Client calls the Gemini generateContent endpoint and validates the model's
// JSON reply against the signal schema. A circuit breaker shields the rest of
// the pipeline from a flapping upstream: once it opens, calls fail fast with
// UnavailableError until the cooldown elapses.
type Client struct {
	BaseURL string

	model    string
	apiKey   string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	counters *quota.Counters
	log      zerolog.Logger
}

// NewClient constructs a Gemini client. An empty API key is a configuration
// error, not a runtime condition, so it is rejected here.
func NewClient(model, apiKey string, counters *quota.Counters, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("gemini: model name is required")
	}
	c := &Client{
		BaseURL:  defaultGeminiBase,
		model:    model,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		counters: counters,
		log:      log.With().Str("component", "gemini").Logger(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gemini",
		Timeout: 2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	return c, nil
}

// Predict asks the model for a signal. Every failure mode surfaces as
// *UnavailableError so the caller has exactly one decision to make.
func (c *Client) Predict(ctx context.Context, in Input) (*Result, error) {
	if c.counters != nil {
		if err := c.counters.Touch(quota.KeyInference, 1); err != nil {
			return nil, &UnavailableError{Reason: "daily inference quota exhausted", Err: err}
		}
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.generate(ctx, buildPrompt(in))
	})
	if err != nil {
		var unavail *UnavailableError
		if errors.As(err, &unavail) {
			return nil, unavail
		}
		return nil, &UnavailableError{Reason: "inference call failed", Err: err}
	}
	return res.(*Result), nil
}

func (c *Client) generate(ctx context.Context, prompt string) (*Result, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []requestContent{{Parts: []requestPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      0.2,
			ResponseMimeType: "application/json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.BaseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post generateContent: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, &UnavailableError{Reason: "empty model response"}
	}
	return parseSignal(out.Candidates[0].Content.Parts[0].Text)
}

// parseSignal validates the model's text against the signal schema. Anything
// outside the contract is treated the same as the API being down.
func parseSignal(text string) (*Result, error) {
	cleaned := stripCodeFences(text)

	var sig struct {
		Action     string  `json:"action"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(cleaned), &sig); err != nil {
		return nil, &UnavailableError{Reason: "model response is not valid JSON", Err: err}
	}

	action := strings.ToUpper(strings.TrimSpace(sig.Action))
	switch action {
	case "BUY", "HOLD", "SELL":
	default:
		return nil, &UnavailableError{Reason: fmt.Sprintf("unrecognized action %q", sig.Action)}
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		return nil, &UnavailableError{Reason: fmt.Sprintf("confidence %v out of range", sig.Confidence)}
	}
	reason := strings.TrimSpace(sig.Reason)
	if len(reason) < 3 || len(reason) > 500 {
		return nil, &UnavailableError{Reason: "reason length out of bounds"}
	}

	return &Result{
		Action:     action,
		Confidence: sig.Confidence,
		Reason:     reason,
		Raw:        text,
	}, nil
}

func buildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Coin: %s\n", in.Name)
	fmt.Fprintf(&b, "Period: %v days historical\n", in.PeriodDays)
	fmt.Fprintf(&b, "Avg Price: %.2f\n", in.AveragePrice)
	fmt.Fprintf(&b, "Volatility: %.2f %%\n", in.Volatility)
	fmt.Fprintf(&b, "24 h Change: %.2f %%\n", in.Change24h)
	b.WriteString("Task: Predict next trend (BUY/HOLD/SELL), confidence 0-1, reason.\n")
	b.WriteString(`Respond JSON only: {"action":"BUY","confidence":0.78,"reason":"Momentum rising"}`)
	return b.String()
}

// stripCodeFences removes a surrounding ```json / ``` block if the model
// wrapped its reply in one despite the JSON mime type.
func stripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type generateRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}
