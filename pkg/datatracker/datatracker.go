package datatracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/iziplay/bibref-api/pkg/bib"
)

// Client queries the IETF datatracker for Internet-Draft metadata. The
// legacy path resolver cross-checks the tracker's reported revision
// against indexed data for unversioned draft requests.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client from DATATRACKER_API_URL (default the public
// datatracker).
func NewClient() *Client {
	base := os.Getenv("DATATRACKER_API_URL")
	if base == "" {
		base = "https://datatracker.ietf.org"
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// DraftInfo is the tracker's view of one draft.
type DraftInfo struct {
	Name  string `json:"name"`
	Rev   string `json:"rev"`
	Title string `json:"title"`
}

// FetchDraftInfo returns the tracker's current metadata for a draft name
// (without a "-NN" version suffix).
func (c *Client) FetchDraftInfo(ctx context.Context, name string) (*DraftInfo, error) {
	endpoint := fmt.Sprintf("%s/api/v1/doc/document/%s/", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build datatracker request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &bib.UpstreamUnavailableError{Service: "datatracker", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, bib.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &bib.UpstreamUnavailableError{
			Service: "datatracker",
			Err:     fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	var info DraftInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, &bib.UpstreamUnavailableError{Service: "datatracker", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if info.Name == "" {
		info.Name = name
	}
	return &info, nil
}
