package doi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/iziplay/bibref-api/pkg/bib"
)

// Client fetches bibliographic data for a DOI from the registry API
// (Crossref-compatible). The registry is the only source for the DOI
// namespace: the record store is never consulted.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client from DOI_API_URL (default Crossref).
func NewClient() *Client {
	base := os.Getenv("DOI_API_URL")
	if base == "" {
		base = "https://api.crossref.org"
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type worksResponse struct {
	Message struct {
		DOI       string    `json:"DOI"`
		Title     []string  `json:"title"`
		Publisher string    `json:"publisher"`
		URL       string    `json:"URL"`
		Type      string    `json:"type"`
		Issued    dateParts `json:"issued"`
	} `json:"message"`
}

type dateParts struct {
	DateParts [][]int `json:"date-parts"`
}

func (d dateParts) String() string {
	if len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return ""
	}
	parts := d.DateParts[0]
	switch len(parts) {
	case 1:
		return fmt.Sprintf("%04d", parts[0])
	case 2:
		return fmt.Sprintf("%04d-%02d", parts[0], parts[1])
	default:
		return fmt.Sprintf("%04d-%02d-%02d", parts[0], parts[1], parts[2])
	}
}

// FetchByDOI resolves a DOI to a record body in the indexed-record shape.
// A registry 404 is not-found; network failures and 5xx responses are
// upstream-unavailable.
func (c *Client) FetchByDOI(ctx context.Context, doi string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/works/%s", c.baseURL, url.PathEscape(doi))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build DOI request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &bib.UpstreamUnavailableError{Service: "doi", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, bib.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &bib.UpstreamUnavailableError{
			Service: "doi",
			Err:     fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	var works worksResponse
	if err := json.NewDecoder(resp.Body).Decode(&works); err != nil {
		return nil, &bib.UpstreamUnavailableError{Service: "doi", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	body := map[string]any{
		"docid": []any{
			map[string]any{"id": works.Message.DOI, "type": "DOI", "primary": true},
		},
	}
	if works.Message.Type != "" {
		body["type"] = works.Message.Type
	}
	if len(works.Message.Title) > 0 {
		var titles []any
		for _, t := range works.Message.Title {
			titles = append(titles, map[string]any{"content": t})
		}
		body["title"] = titles
	}
	if works.Message.URL != "" {
		body["link"] = []any{map[string]any{"content": works.Message.URL}}
	}
	if published := works.Message.Issued.String(); published != "" {
		body["date"] = []any{map[string]any{"type": "published", "value": published}}
	}
	if works.Message.Publisher != "" {
		body["publisher"] = works.Message.Publisher
	}
	return body, nil
}
