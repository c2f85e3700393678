package knowledge

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/paylane/concierge/pkg/logger"
)

// WebResult is one external search hit. External evidence is only consulted
// on the fallback branch and is always tagged so citations stay auditable.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearchClient looks up external evidence for queries the index cannot
// answer.
type WebSearchClient interface {
	Search(ctx context.Context, query string, topK int) ([]WebResult, error)
}

// NoopWebSearchClient always returns no results; the default when external
// search is disabled.
type NoopWebSearchClient struct{}

func (NoopWebSearchClient) Search(context.Context, string, int) ([]WebResult, error) {
	return nil, nil
}

// HTTPWebSearchClient queries a search endpoint returning
// {"results": [{"title", "url", "snippet"}]}.
type HTTPWebSearchClient struct {
	client *resty.Client
	url    string
}

func NewHTTPWebSearchClient(baseURL string) *HTTPWebSearchClient {
	return &HTTPWebSearchClient{client: resty.New(), url: baseURL}
}

type webSearchResponse struct {
	Results []WebResult `json:"results"`
}

func (c *HTTPWebSearchClient) Search(ctx context.Context, query string, topK int) ([]WebResult, error) {
	var payload webSearchResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetResult(&payload).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("knowledge: web search failed: %w", err)
	}
	if response.IsError() {
		logger.FromContext(ctx).Warn("Web search returned an error status",
			"status", response.StatusCode())
		return nil, fmt.Errorf("knowledge: web search status %d", response.StatusCode())
	}
	results := payload.Results
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
