package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"medscan-backend/pkg/api"
)

// ragClient proxies chat questions to the external retrieval-augmented
// medical knowledge endpoint.
type ragClient struct {
	client *resty.Client
}

func newRagClient(baseURL string) *ragClient {
	return &ragClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(60 * time.Second),
	}
}

type ragSource struct {
	Rank  int     `json:"rank"`
	Title string  `json:"title"`
	Link  string  `json:"link"`
	Score float64 `json:"score"`
}

type ragPrediction struct {
	Answer  string `json:"answer"`
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	Stats   struct {
		Sources []ragSource `json:"sources"`
	} `json:"stats"`
}

type ragResponse struct {
	Predictions []ragPrediction `json:"predictions"`
}

func (c *ragClient) query(ctx context.Context, message string) (*ragPrediction, error) {
	body := map[string]any{
		"instances": []map[string]string{{"query": message}},
	}

	var result ragResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("calling rag endpoint: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("rag endpoint returned status %d", res.StatusCode())
	}
	if len(result.Predictions) == 0 {
		return nil, fmt.Errorf("rag endpoint returned no predictions")
	}

	prediction := result.Predictions[0]
	if prediction.Success != nil && !*prediction.Success {
		if prediction.Error != "" {
			return nil, fmt.Errorf("rag processing failed: %s", prediction.Error)
		}
		return nil, fmt.Errorf("rag processing failed")
	}
	return &prediction, nil
}

func (s *BackendService) Chat(r *http.Request) (any, error) {
	req, err := ParseRequest[api.ChatRequest](r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "message is required")
	}

	prediction, err := s.rag.query(r.Context(), req.Message)
	if err != nil {
		slog.Error("rag query failed", "error", err)
		return nil, CodedErrorf(http.StatusBadGateway, "assistant temporarily unavailable")
	}

	answer := cleanRagAnswer(prediction.Answer)
	if answer == "" {
		return nil, CodedErrorf(http.StatusBadGateway, "assistant returned an empty answer")
	}

	return api.ChatResponse{
		Response: answer,
		Sources:  extractSources(prediction.Stats.Sources),
	}, nil
}

func (s *BackendService) ChatHealth(r *http.Request) (any, error) {
	_, err := s.rag.query(r.Context(), "test")
	if err != nil {
		slog.Warn("rag health probe failed", "error", err)
		return api.ChatHealthResponse{Status: "unhealthy"}, nil
	}
	return api.ChatHealthResponse{Status: "healthy", DocumentsReady: true}, nil
}

var (
	separatorRe   = regexp.MustCompile(`\n*-{3,}\n*`)
	answerLabelRe = regexp.MustCompile(`(?i)^answer\s*:\s*`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	leadingNumRe  = regexp.MustCompile(`^\d+\.\s*`)
)

// cleanRagAnswer strips the boilerplate the upstream model appends to every
// answer (limitations, references, disclaimers) and deduplicates repeated
// sentences the model sometimes emits.
func cleanRagAnswer(raw string) string {
	answer := raw
	for _, marker := range []string{"Limitations:", "Limitation:", "**References:**", "References:", "**Important:**", "Important:"} {
		if before, _, found := strings.Cut(answer, marker); found {
			answer = before
		}
	}

	answer = separatorRe.ReplaceAllString(answer, "")
	answer = answerLabelRe.ReplaceAllString(strings.TrimSpace(answer), "")

	seen := make(map[string]bool)
	var sentences []string
	for _, sentence := range splitSentences(answer) {
		normalized := whitespaceRe.ReplaceAllString(strings.ToLower(sentence), " ")
		if !seen[normalized] {
			seen[normalized] = true
			sentences = append(sentences, sentence)
		}
	}
	answer = strings.Join(sentences, " ")

	// Drop a trailing truncated sentence.
	if answer != "" && !strings.ContainsAny(answer[len(answer)-1:], ".!?") {
		if last := strings.LastIndexAny(answer, ".!?"); last > 0 {
			answer = answer[:last+1]
		}
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(answer, " "))
}

var sentenceEndRe = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)

func splitSentences(text string) []string {
	var sentences []string
	rest := strings.TrimSpace(text)
	for rest != "" {
		loc := sentenceEndRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			sentences = append(sentences, rest)
			break
		}
		sentences = append(sentences, strings.TrimSpace(rest[loc[2]:loc[3]]))
		rest = strings.TrimSpace(rest[loc[1]:])
	}
	return sentences
}

func extractSources(sources []ragSource) []api.ChatSource {
	var results []api.ChatSource
	for _, source := range sources {
		if len(results) == 5 {
			break
		}
		title := strings.TrimSpace(strings.ReplaceAll(source.Title, "__", ""))
		title = leadingNumRe.ReplaceAllString(title, "")
		link := strings.TrimSpace(source.Link)
		if title == "" || !strings.HasPrefix(link, "http") {
			continue
		}
		results = append(results, api.ChatSource{Title: title, URL: link})
	}
	return results
}
