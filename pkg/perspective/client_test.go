package perspective

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgingScore(t *testing.T) {
	t.Run("composite of the three positive attributes", func(t *testing.T) {
		s := AttributeScores{PersonalStory: 0.5, Reasoning: 0.3, Curiosity: 0.2}
		assert.InDelta(t, 1.0, s.BridgingScore(), 1e-9)
	})

	t.Run("full toxicity zeroes the composite", func(t *testing.T) {
		s := AttributeScores{PersonalStory: 1, Reasoning: 1, Curiosity: 1, Toxicity: 1}
		assert.Zero(t, s.BridgingScore())
	})

	t.Run("partial toxicity attenuates", func(t *testing.T) {
		s := AttributeScores{PersonalStory: 1, Reasoning: 1, Curiosity: 1, Toxicity: 0.5}
		assert.InDelta(t, 1.5, s.BridgingScore(), 1e-9)
	})
}

func TestAnalyze(t *testing.T) {
	t.Run("requests four attributes with doNotStore", func(t *testing.T) {
		var captured analyzeRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/comments:analyze", r.URL.Path)
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			_, _ = w.Write([]byte(`{"attributeScores": {
				"PERSONAL_STORY_EXPERIMENTAL": {"summaryScore": {"value": 0.8}},
				"REASONING_EXPERIMENTAL": {"summaryScore": {"value": 0.6}},
				"CURIOSITY_EXPERIMENTAL": {"summaryScore": {"value": 0.4}},
				"TOXICITY": {"summaryScore": {"value": 0.1}}
			}}`))
		}))
		defer srv.Close()

		scores, err := NewClient(srv.URL, "test-key").Analyze(context.Background(), "some comment")
		require.NoError(t, err)
		assert.Equal(t, AttributeScores{PersonalStory: 0.8, Reasoning: 0.6, Curiosity: 0.4, Toxicity: 0.1}, scores)

		assert.True(t, captured.DoNotStore)
		assert.Len(t, captured.RequestedAttributes, 4)
		assert.Contains(t, captured.RequestedAttributes, "TOXICITY")
		assert.Equal(t, "some comment", captured.Comment.Text)
	})

	t.Run("missing attributes default to zero", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"attributeScores": {"TOXICITY": {"summaryScore": {"value": 0.9}}}}`))
		}))
		defer srv.Close()

		scores, err := NewClient(srv.URL, "k").Analyze(context.Background(), "text")
		require.NoError(t, err)
		assert.Equal(t, AttributeScores{Toxicity: 0.9}, scores)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, "k").Analyze(context.Background(), "text")
		assert.ErrorContains(t, err, "classifier returned 429")
	})
}

func TestSanitizeText(t *testing.T) {
	t.Run("strips control characters except newline and tab", func(t *testing.T) {
		assert.Equal(t, "a\nb\tc", SanitizeText("a\n\x00b\t\x1bc"))
	})

	t.Run("truncates to the input cap", func(t *testing.T) {
		long := strings.Repeat("x", maxCommentLength+100)
		assert.Len(t, SanitizeText(long), maxCommentLength)
	})

	t.Run("truncation never splits a rune", func(t *testing.T) {
		// The two-byte é straddles the cap; the whole rune is dropped.
		text := strings.Repeat("a", maxCommentLength-1) + "édge"
		got := SanitizeText(text)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, strings.Repeat("a", maxCommentLength-1), got)
	})
}
