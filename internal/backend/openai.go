package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/greatowl/receptionist/internal/session"
)

// ErrEmptyReply is returned when the upstream answers successfully but with
// no usable text.
var ErrEmptyReply = errors.New("empty response from upstream")

// ErrAborted signals that the fragment consumer stopped the stream, typically
// because the caller disconnected. It is not an upstream failure.
var ErrAborted = errors.New("stream aborted by consumer")

// Client calls an OpenAI-compatible chat completions API with fixed sampling
// parameters.
type Client struct {
	apiKey      string
	url         string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	tracer      trace.Tracer
	meter       metric.Meter
}

// NewClient creates a completion client. url is the full chat completions
// endpoint; timeout bounds a whole request including streaming.
func NewClient(apiKey, url, model string, temperature float64, maxTokens int, timeout time.Duration, tracer trace.Tracer, meter metric.Meter) *Client {
	return &Client{
		apiKey:      apiKey,
		url:         url,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: timeout},
		tracer:      tracer,
		meter:       meter,
	}
}

// Configured reports whether an API credential is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Complete sends a non-streaming completion request and returns the reply text.
func (c *Client) Complete(ctx context.Context, messages []session.Message) (string, error) {
	ctx, span := c.tracer.Start(ctx, "openai_complete")
	defer span.End()

	start := time.Now()
	resp, err := c.send(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp OpenAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.recordDuration(ctx, time.Since(start))

	if len(apiResp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	content := strings.TrimSpace(apiResp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

// Stream sends a streaming completion request and invokes onFragment for each
// content delta in arrival order. A non-nil error from onFragment aborts the
// stream and is reported as ErrAborted.
func (c *Client) Stream(ctx context.Context, messages []session.Message, onFragment func(string) error) error {
	ctx, span := c.tracer.Start(ctx, "openai_stream")
	defer span.End()

	start := time.Now()
	resp, err := c.send(ctx, messages, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk OpenAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		if err := onFragment(text); err != nil {
			return fmt.Errorf("%w: %v", ErrAborted, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}

	c.recordDuration(ctx, time.Since(start))
	return nil
}

func (c *Client) send(ctx context.Context, messages []session.Message, stream bool) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	reqMessages := make([]OpenAIMessage, len(messages))
	for i, msg := range messages {
		reqMessages[i] = OpenAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	reqBody := OpenAIRequest{
		Model:       c.model,
		Messages:    reqMessages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return resp, nil
}

func (c *Client) recordDuration(ctx context.Context, d time.Duration) {
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(d.Milliseconds()))
	}
}
