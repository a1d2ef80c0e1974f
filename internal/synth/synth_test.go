package synth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/growlog/growlog/internal/rag"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestResponseDecode(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	t.Run("plain json", func(t *testing.T) {
		resp := &Response{Text: `{"name":"squat","count":3}`}

		var p payload
		require.NoError(t, resp.Decode(&p))
		assert.Equal(t, "squat", p.Name)
		assert.Equal(t, 3, p.Count)
	})

	t.Run("fenced json", func(t *testing.T) {
		resp := &Response{Text: "```json\n{\"name\":\"squat\",\"count\":3}\n```"}

		var p payload
		require.NoError(t, resp.Decode(&p))
		assert.Equal(t, "squat", p.Name)
	})

	t.Run("decode is repeatable", func(t *testing.T) {
		resp := &Response{Text: `{"name":"squat","count":3}`}

		var first, second payload
		require.NoError(t, resp.Decode(&first))
		require.NoError(t, resp.Decode(&second))
		assert.Equal(t, first, second)
	})
}

func TestResponseDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t  "},
		{"empty fence", "```json\n```"},
		{"not json", "Sure! Here is your meal plan: eat more protein."},
		{"truncated json", `{"name":"squat","cou`},
		{"oversize", `{"name":"` + strings.Repeat("x", maxDecodeBytes) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &Response{Text: tt.text}

			var v map[string]any
			err := resp.Decode(&v)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedOutput)
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"trailing newline inside fence", "```json\n{\"a\":1}\n\n```", `{"a":1}`},
		{"fence mid-text untouched", "prefix ```json\n{\"a\":1}\n```", "prefix ```json\n{\"a\":1}\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFences(tt.in))
		})
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("Rate Limit exceeded for project"), true},
		{"quota", errors.New("quota exceeded"), true},
		{"http 429", errors.New("googleapi: Error 429: too many requests"), true},
		{"http 503", errors.New("rpc error: code = 503 service unavailable"), true},
		{"timeout", errors.New("context deadline exceeded: timeout"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"auth failure", errors.New("401 invalid api key"), false},
		{"bad request", errors.New("400 invalid argument: unknown model"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableError(tt.err))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Run("no snippets passes through", func(t *testing.T) {
		got := buildPrompt(Request{Prompt: "plan my dinner"})
		assert.Equal(t, "plan my dinner", got)
	})

	t.Run("snippets appended as reference block", func(t *testing.T) {
		got := buildPrompt(Request{
			Prompt: "advise on shoulder pain",
			Snippets: []rag.Snippet{
				{Title: "Shoulder care", Content: "Stop pressing movements for a few days."},
				{Content: "Ice for 15 minutes after training."},
			},
		})

		assert.True(t, strings.HasPrefix(got, "advise on shoulder pain"))
		assert.Contains(t, got, "Reference knowledge:")
		assert.Contains(t, got, "- Shoulder care: Stop pressing movements for a few days.")
		assert.Contains(t, got, "- Ice for 15 minutes after training.")
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 10*time.Second, cfg.MaxInterval)
}
