// Package openai calls the moderation engine over the OpenAI chat completions
// API. Moderate never fails outward: any transport or parse problem collapses
// into the fail-safe block verdict.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"corelay/internal/domain"
	"corelay/internal/observability"
)

type Client struct {
	APIKey  string
	BaseURL string
	Model   string
	HTTP    *http.Client
}

const systemPrompt = "You are a professional mediator specialized in high-conflict co-parenting communication. Always respond with valid JSON only."

const promptTemplate = `You are an AI moderator for co-parent communication. Analyze the following message for emotional content, hostility, negativity, or inappropriate language that could escalate conflict between co-parents.

Message: "%s"

Provide your analysis in the following JSON format:
{
  "isAppropriate": boolean (true if message is appropriate, false if it should be blocked),
  "issues": string[] (list of specific problems found, empty if appropriate),
  "suggestions": string[] (constructive suggestions for rephrasing, empty if appropriate),
  "tone": string (describe the overall tone: neutral, friendly, frustrated, hostile, etc.),
  "severity": "low" | "medium" | "high" (severity of issues found, low if appropriate)
}

Guidelines:
- Block messages that contain: insults, blame, sarcasm, passive-aggression, threats, guilt-tripping, emotional manipulation
- Approve messages that are: factual, respectful, focused on children's needs, solution-oriented
- Consider context: discussing child schedules, health, education, finances should be neutral and business-like`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// rawVerdict uses pointers so absent fields are distinguishable and can be
// defaulted; the engine's output is otherwise trusted as-is.
type rawVerdict struct {
	IsAppropriate *bool    `json:"isAppropriate"`
	Issues        []string `json:"issues"`
	Suggestions   []string `json:"suggestions"`
	Tone          string   `json:"tone"`
	Severity      string   `json:"severity"`
}

// Moderate classifies message content. On any failure it returns the
// fail-safe block verdict instead of an error: when the engine cannot be
// consulted the message is blocked, not let through.
func (c *Client) Moderate(ctx context.Context, content string) domain.ModerationVerdict {
	start := time.Now()
	verdict, err := c.moderate(ctx, content)
	observability.ModerationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("moderation call failed, blocking for safety", "err", err)
		observability.ModerationRequests.WithLabelValues("error").Inc()
		return FailSafeVerdict()
	}
	if verdict.IsAppropriate {
		observability.ModerationRequests.WithLabelValues("approved").Inc()
	} else {
		observability.ModerationRequests.WithLabelValues("blocked").Inc()
	}
	return verdict
}

func (c *Client) moderate(ctx context.Context, content string) (domain.ModerationVerdict, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(promptTemplate, content)},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
		Temperature:    0.3,
	})
	if err != nil {
		return domain.ModerationVerdict{}, err
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return domain.ModerationVerdict{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return domain.ModerationVerdict{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ModerationVerdict{}, fmt.Errorf("moderation engine status %d: %s", resp.StatusCode, truncate(b, 256))
	}

	var out chatResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return domain.ModerationVerdict{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return domain.ModerationVerdict{}, errors.New("completion has no choices")
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(out.Choices[0].Message.Content), &raw); err != nil {
		return domain.ModerationVerdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	return applyDefaults(raw), nil
}

func applyDefaults(raw rawVerdict) domain.ModerationVerdict {
	v := domain.ModerationVerdict{
		IsAppropriate: true,
		Issues:        []string{},
		Suggestions:   []string{},
		Tone:          "unknown",
		Severity:      "low",
	}
	if raw.IsAppropriate != nil {
		v.IsAppropriate = *raw.IsAppropriate
	}
	if raw.Issues != nil {
		v.Issues = raw.Issues
	}
	if raw.Suggestions != nil {
		v.Suggestions = raw.Suggestions
	}
	if raw.Tone != "" {
		v.Tone = raw.Tone
	}
	if raw.Severity != "" {
		v.Severity = raw.Severity
	}
	return v
}

// FailSafeVerdict is returned whenever the engine cannot be consulted or its
// output cannot be understood.
func FailSafeVerdict() domain.ModerationVerdict {
	return domain.ModerationVerdict{
		IsAppropriate: false,
		Issues:        []string{"Error analyzing message - defaulting to block for safety"},
		Suggestions:   []string{"Please try sending your message again"},
		Tone:          "error",
		Severity:      "high",
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
