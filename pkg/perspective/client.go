package perspective

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// maxCommentLength is the classifier's input cap; longer text is truncated
// before sending.
const maxCommentLength = 20480

// Requested classifier attributes.
const (
	attrPersonalStory = "PERSONAL_STORY_EXPERIMENTAL"
	attrReasoning     = "REASONING_EXPERIMENTAL"
	attrCuriosity     = "CURIOSITY_EXPERIMENTAL"
	attrToxicity      = "TOXICITY"
)

// Analyzer scores a piece of text. Satisfied by *Client; fakes implement it
// in tests.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (AttributeScores, error)
}

// Client calls the comment-analysis HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a classifier client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type analyzeRequest struct {
	Comment             commentBody              `json:"comment"`
	RequestedAttributes map[string]struct{}      `json:"requestedAttributes"`
	DoNotStore          bool                     `json:"doNotStore"`
	Languages           []string                 `json:"languages"`
}

type commentBody struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	AttributeScores map[string]struct {
		SummaryScore struct {
			Value float64 `json:"value"`
		} `json:"summaryScore"`
	} `json:"attributeScores"`
}

// Analyze sanitizes the text and requests the four attributes. Missing
// attributes in the response default to 0.
func (c *Client) Analyze(ctx context.Context, text string) (AttributeScores, error) {
	body, err := json.Marshal(analyzeRequest{
		Comment: commentBody{Text: SanitizeText(text)},
		RequestedAttributes: map[string]struct{}{
			attrPersonalStory: {},
			attrReasoning:     {},
			attrCuriosity:     {},
			attrToxicity:      {},
		},
		DoNotStore: true,
		Languages:  []string{"en"},
	})
	if err != nil {
		return AttributeScores{}, fmt.Errorf("marshaling analyze request: %w", err)
	}

	url := fmt.Sprintf("%s/comments:analyze?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return AttributeScores{}, fmt.Errorf("building analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AttributeScores{}, fmt.Errorf("calling classifier: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return AttributeScores{}, fmt.Errorf("reading classifier response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AttributeScores{}, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, truncateForError(respBody))
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return AttributeScores{}, fmt.Errorf("malformed classifier response: %w", err)
	}

	return AttributeScores{
		PersonalStory: parsed.value(attrPersonalStory),
		Reasoning:     parsed.value(attrReasoning),
		Curiosity:     parsed.value(attrCuriosity),
		Toxicity:      parsed.value(attrToxicity),
	}, nil
}

// value extracts one summary score, defaulting to 0 when missing.
func (r *analyzeResponse) value(attr string) float64 {
	if entry, ok := r.AttributeScores[attr]; ok {
		return entry.SummaryScore.Value
	}
	return 0
}

// SanitizeText strips control characters (except newline and tab) and
// truncates to the classifier's input cap.
func SanitizeText(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sb.WriteRune(r)
	}
	cleaned := sb.String()
	if len(cleaned) > maxCommentLength {
		cut := maxCommentLength
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}
	return cleaned
}

func truncateForError(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "…"
	}
	return string(body)
}
