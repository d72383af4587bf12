package anilist

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/amishk599/synopsis/internal/httputil"
	"github.com/amishk599/synopsis/internal/model"
	"github.com/amishk599/synopsis/internal/ratelimit"
	"github.com/amishk599/synopsis/internal/retry"
)

//go:embed query.graphql
var pageQuery string

const limiterKey = "anilist"

// graphQLRequest is the POST body for the AniList endpoint.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// pageResponse mirrors the relevant part of a Page query response.
type pageResponse struct {
	Data struct {
		Page struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
			Media []media `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type media struct {
	ID    int64 `json:"id"`
	Title struct {
		Romaji  *string `json:"romaji"`
		English *string `json:"english"`
	} `json:"title"`
	Season      *string  `json:"season"`
	SeasonYear  *int     `json:"seasonYear"`
	Description *string  `json:"description"`
	Popularity  *int     `json:"popularity"`
	MeanScore   *int     `json:"meanScore"`
	Genres      []string `json:"genres"`
}

// Client downloads media metadata from the AniList GraphQL API one season year
// at a time. It is safe for concurrent use; all callers share one limiter.
type Client struct {
	baseURL   string
	mediaType string
	client    *http.Client
	limiter   *ratelimit.KeyedLimiter
	retrier   *retry.Retrier
}

// NewClient creates a client. retrier decides how 429s and failures are retried.
func NewClient(baseURL, mediaType string, client *http.Client, limiter *ratelimit.KeyedLimiter, retrier *retry.Retrier) *Client {
	return &Client{
		baseURL:   baseURL,
		mediaType: mediaType,
		client:    client,
		limiter:   limiter,
		retrier:   retrier,
	}
}

// FetchYear follows pagination until hasNextPage is false and returns every
// record of the given season year.
func (c *Client) FetchYear(ctx context.Context, year int) ([]model.Record, error) {
	var all []model.Record
	for page := 1; ; page++ {
		var (
			records []model.Record
			hasNext bool
		)
		err := c.retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			records, hasNext, err = c.FetchPage(ctx, year, page)
			return err
		})
		if err != nil {
			return all, fmt.Errorf("anilist year %d page %d: %w", year, page, err)
		}
		all = append(all, records...)
		if !hasNext {
			return all, nil
		}
	}
}

// FetchPage performs one request. A non-200 status returns *model.HTTPError.
func (c *Client) FetchPage(ctx context.Context, year, page int) ([]model.Record, bool, error) {
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return nil, false, err
	}

	body, err := json.Marshal(graphQLRequest{
		Query: pageQuery,
		Variables: map[string]any{
			"page":       page,
			"type":       c.mediaType,
			"seasonYear": year,
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal anilist query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create anilist request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("anilist request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, httputil.StatusError(resp)
	}

	var pr pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, false, fmt.Errorf("decode anilist response: %w", err)
	}
	if len(pr.Errors) > 0 {
		msgs := make([]string, len(pr.Errors))
		for i, e := range pr.Errors {
			msgs[i] = e.Message
		}
		return nil, false, fmt.Errorf("anilist errors: %s", strings.Join(msgs, "; "))
	}

	records := make([]model.Record, 0, len(pr.Data.Page.Media))
	for _, m := range pr.Data.Page.Media {
		records = append(records, m.toRecord(year))
	}
	return records, pr.Data.Page.PageInfo.HasNextPage, nil
}

func (m media) toRecord(year int) model.Record {
	rec := model.Record{
		ID:         m.ID,
		Title:      model.Title{Romaji: deref(m.Title.Romaji), English: deref(m.Title.English)},
		Season:     deref(m.Season),
		Year:       year,
		Popularity: m.Popularity,
		MeanScore:  m.MeanScore,
		Genres:     m.Genres,
	}
	if m.SeasonYear != nil {
		rec.Year = *m.SeasonYear
	}
	if m.Description != nil {
		rec.Description = cleanDescription(*m.Description)
	}
	return rec
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
