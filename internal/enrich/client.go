package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/amishk599/synopsis/internal/httputil"
	"github.com/amishk599/synopsis/internal/model"
)

// Options configures a Client. Credential is the only per-worker field.
type Options struct {
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client calls an OpenAI-compatible /chat/completions endpoint with a single
// credential and turns the reply into an EnrichedResult. A Client performs
// exactly one request per Enrich call; retries belong to the caller.
type Client struct {
	opts       Options
	credential string
	httpClient *http.Client
}

// NewClient creates a client bound to credential.
func NewClient(opts Options, credential string, httpClient *http.Client) *Client {
	return &Client{
		opts:       opts,
		credential: credential,
		httpClient: httpClient,
	}
}

// chatRequest mirrors the /chat/completions request body.
type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	TopP           float64        `json:"top_p"`
	Stream         bool           `json:"stream"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse mirrors the relevant fields of the response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// generated is the JSON document the model is asked to produce.
type generated struct {
	Summary *string  `json:"summary"`
	Themes  []string `json:"themes"`
	Genres  []string `json:"genres"`
}

// Enrich requests a summary for rec.
//
// Errors: a non-200 status returns *model.HTTPError (with Retry-After when the
// server sent one); a 200 whose body lacks the expected shape returns an error
// wrapping model.ErrUnparseable; anything else is a transport failure.
func (c *Client) Enrich(ctx context.Context, rec model.Record) (model.EnrichedResult, error) {
	var userBuf bytes.Buffer
	if err := userTemplate.Execute(&userBuf, struct{ Title, Description string }{
		Title:       rec.Title.Display(),
		Description: rec.Description,
	}); err != nil {
		return model.EnrichedResult{}, fmt.Errorf("render prompt: %w", err)
	}

	reqBody := chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userBuf.String()},
		},
		Temperature:    c.opts.Temperature,
		MaxTokens:      c.opts.MaxTokens,
		TopP:           1,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return model.EnrichedResult{}, fmt.Errorf("marshal enrichment request: %w", err)
	}

	url := strings.TrimRight(c.opts.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return model.EnrichedResult{}, fmt.Errorf("create enrichment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.EnrichedResult{}, fmt.Errorf("enrichment request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.EnrichedResult{}, httputil.StatusError(resp)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.EnrichedResult{}, fmt.Errorf("read enrichment response: %w", err)
	}

	return parseResponse(respBytes, rec.ID)
}

// parseResponse extracts choices[0].message.content and decodes the generated
// document inside it.
func parseResponse(body []byte, id int64) (model.EnrichedResult, error) {
	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return model.EnrichedResult{}, fmt.Errorf("%w: %v", model.ErrUnparseable, err)
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == nil {
		return model.EnrichedResult{}, fmt.Errorf("%w: missing choices[0].message.content", model.ErrUnparseable)
	}

	var gen generated
	if err := json.Unmarshal([]byte(*chatResp.Choices[0].Message.Content), &gen); err != nil {
		return model.EnrichedResult{}, fmt.Errorf("%w: content is not JSON: %v", model.ErrUnparseable, err)
	}
	if gen.Summary == nil || strings.TrimSpace(*gen.Summary) == "" {
		return model.EnrichedResult{}, fmt.Errorf("%w: missing summary", model.ErrUnparseable)
	}

	return model.EnrichedResult{
		ID:      id,
		Summary: strings.TrimSpace(*gen.Summary),
		Themes:  gen.Themes,
		Genres:  gen.Genres,
	}, nil
}
