// Package synth merges task prompts, retrieved grounding context, and
// optional visual input into single completion requests.
//
// The synthesizer owns the mechanics of talking to the model: rate
// limiting, bounded per-call timeouts, and bounded retries with
// exponential backoff for transient provider failures. It does not own
// fallback semantics; callers decide what to do when a call fails or
// when structured output does not validate, driven by the ErrService
// and ErrMalformedOutput sentinels.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/growlog/growlog/internal/rag"
)

var (
	// ErrService indicates the completion call itself failed
	// (network, provider, timeout). Callers with documented fallbacks
	// check for it with errors.Is.
	ErrService = errors.New("completion service failed")

	// ErrMalformedOutput indicates the model responded but its output
	// failed JSON or schema validation.
	ErrMalformedOutput = errors.New("malformed model output")
)

// maxDecodeBytes limits model response size before JSON parsing.
const maxDecodeBytes = 64 * 1024

// ImagePart is an inline image attached to a vision request.
type ImagePart struct {
	MIMEType string // e.g. "image/jpeg"
	Base64   string // raw base64 payload, no data: prefix
}

// Request describes one completion call.
type Request struct {
	System      string        // system instruction, optional
	Prompt      string        // task prompt
	Snippets    []rag.Snippet // retrieved grounding context, optional
	Image       *ImagePart    // visual input, optional
	Temperature float32       // sampling temperature for this task
	JSONOutput  bool          // request JSON-only output
	Model       string        // provider-prefixed model name; empty = default
}

// Response is the raw completion result.
type Response struct {
	Text string
}

// Decode parses the response as JSON into v. Markdown code fences are
// stripped first since models wrap JSON in them despite instructions.
// Failures wrap ErrMalformedOutput.
func (r *Response) Decode(v any) error {
	text := stripCodeFences(strings.TrimSpace(r.Text))
	if text == "" {
		return fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}
	if len(text) > maxDecodeBytes {
		return fmt.Errorf("%w: response too large (%d bytes)", ErrMalformedOutput, len(text))
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("%w: %w (raw: %q)", ErrMalformedOutput, err, truncate(text, 200))
	}
	return nil
}

// RetryConfig configures retry behavior for transient provider failures.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Options configures a Synthesizer.
type Options struct {
	DefaultModel string        // used when Request.Model is empty
	Timeout      time.Duration // per-attempt bound for each outbound call
	Retry        RetryConfig
	RateLimit    float64 // outbound calls per second; 0 disables
	Logger       *slog.Logger
}

// Synthesizer issues completion requests through Genkit. It is a
// process-wide singleton shared read-mostly across requests.
type Synthesizer struct {
	g            *genkit.Genkit
	defaultModel string
	timeout      time.Duration
	retry        RetryConfig
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// New creates a Synthesizer.
func New(g *genkit.Genkit, opts Options) *Synthesizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := opts.Retry
	if retry.InitialInterval == 0 {
		retry = DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &Synthesizer{
		g:            g,
		defaultModel: opts.DefaultModel,
		timeout:      opts.Timeout,
		retry:        retry,
		limiter:      limiter,
		logger:       logger,
	}
}

// Complete executes the request and returns the raw completion. Call
// failures wrap ErrService after the retry budget is exhausted.
func (s *Synthesizer) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	parts := make([]*ai.Part, 0, 2)
	if req.Image != nil {
		parts = append(parts, ai.NewMediaPart(req.Image.MIMEType,
			"data:"+req.Image.MIMEType+";base64,"+req.Image.Base64))
	}
	parts = append(parts, ai.NewTextPart(buildPrompt(req)))

	opts := []ai.GenerateOption{
		ai.WithModelName(model),
		ai.WithMessages(ai.NewUserMessage(parts...)),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(req.Temperature),
		}),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if req.JSONOutput {
		opts = append(opts, ai.WithOutputFormat(ai.OutputFormatJSON))
	}

	resp, err := s.generateWithRetry(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrService, err)
	}

	return &Response{Text: resp.Text()}, nil
}

// generateWithRetry executes the generation with exponential backoff.
// Each attempt is rate limited and bounded by the configured timeout.
func (s *Synthesizer) generateWithRetry(ctx context.Context, opts []ai.GenerateOption) (*ai.ModelResponse, error) {
	var lastErr error
	delay := s.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := s.attempt(ctx, opts)
		if err == nil {
			s.logger.Debug("completion succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start))
			return resp, nil
		}

		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == s.retry.MaxRetries {
			break
		}

		s.logger.Debug("retrying completion after transient error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, s.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		s.retry.MaxRetries, time.Since(start), lastErr)
}

func (s *Synthesizer) attempt(ctx context.Context, opts []ai.GenerateOption) (*ai.ModelResponse, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return genkit.Generate(ctx, s.g, opts...)
}

// buildPrompt appends retrieved snippets to the task prompt as a
// labeled reference block.
func buildPrompt(req Request) string {
	if len(req.Snippets) == 0 {
		return req.Prompt
	}

	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\nReference knowledge:\n")
	for _, snip := range req.Snippets {
		b.WriteString("- ")
		if snip.Title != "" {
			b.WriteString(snip.Title)
			b.WriteString(": ")
		}
		b.WriteString(snip.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// retryablePatterns groups transient error substrings, matched
// case-insensitively. String matching is used because Genkit and the
// provider SDKs do not expose typed errors for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},
	{"500", "502", "503", "504", "unavailable"},
	{"connection reset", "timeout", "temporary"},
}

func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(msg, sub) {
				return true
			}
		}
	}
	return false
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func stripCodeFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	trimmed := strings.TrimPrefix(text, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
