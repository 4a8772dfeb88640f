package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/danielgtaylor/huma/v2"
	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/compose"
	"github.com/iziplay/bibref-api/pkg/database"
	"github.com/iziplay/bibref-api/pkg/query"
	"github.com/iziplay/bibref-api/pkg/sources"
	"github.com/iziplay/bibref-api/pkg/xml2rfc"
)

// Deps are the resolution services the API operates over, wired once in
// main.
type Deps struct {
	Store    *database.Store
	Composer *compose.Service
	Resolver *xml2rfc.Resolver
	Sources  *sources.Provider
}

type PlainOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type SearchInput struct {
	Query    string `query:"query" required:"true" doc:"Search query: identifier pattern, JSON fragment, JSON path or web search"`
	Format   string `query:"format" default:"docid_regex" enum:"docid_regex,json_struct,json_path,websearch" doc:"Query dialect"`
	Fallback bool   `query:"fallback" default:"true" doc:"Try other dialects in fixed order when the declared one matches nothing"`
	Limit    int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Maximum number of results"`
	Offset   int    `query:"offset" default:"0" minimum:"0" doc:"Offset for pagination"`
}

type SearchOutput struct {
	Body struct {
		TotalApprox int             `json:"totalApprox"`
		UsedFormat  string          `json:"usedFormat,omitempty"`
		Results     []*compose.Item `json:"results"`
	}
}

type GetByDocidInput struct {
	Docid   string `query:"docid" required:"true" doc:"Document identifier, e.g. \"RFC 1918\""`
	Doctype string `query:"doctype" doc:"Identifier type, e.g. \"IETF\" (any type when omitted)"`
}

type ItemOutput struct {
	Body compose.Item
}

type LegacyRefInput struct {
	Dirname  string `path:"dirname" doc:"Legacy xml2rfc directory, e.g. bibxml3"`
	Filename string `path:"filename" doc:"Legacy reference filename, e.g. reference.I-D.draft-foo-bar-05.xml"`
	Anchor   string `query:"anchor" doc:"Override the anchor in the response"`
	AsJSON   bool   `query:"json" doc:"Return the structured item and resolution trace instead of XML-era payloads"`
}

type LegacyRefJSONOutput struct {
	Body xml2rfc.Outcome
}

type ReversePathsInput struct {
	Docid   string `query:"docid" required:"true" doc:"Document identifier to enumerate legacy paths for"`
	Doctype string `query:"doctype" doc:"Identifier type"`
}

type ReversePathsOutput struct {
	Body struct {
		Paths []xml2rfc.PathEntry `json:"paths"`
	}
}

type SourcesOutput struct {
	Body struct {
		Sources []database.DataSource `json:"sources"`
	}
}

var legacyFilename = regexp.MustCompile(`^reference\.(.+)\.xml$`)

// Setup registers all operations.
func Setup(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "HealthCheck",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Check if the API is running",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*PlainOutput, error) {
		return &PlainOutput{
			ContentType: "text/plain",
			Body:        []byte("OK"),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "SearchCitations",
		Method:      "GET",
		Path:        "/v1/search",
		Summary:     "Search citations",
		Description: "Search indexed bibliographic records and merge matches into composite items",
		Tags:        []string{"Search"},
	}, func(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
		var (
			records    []database.RefData
			usedFormat query.Format
			err        error
		)
		if input.Fallback {
			records, usedFormat, err = query.SearchWithFallback(ctx, deps.Store, input.Query, input.Limit+input.Offset)
		} else {
			usedFormat = query.Format(input.Format)
			records, err = query.Search(ctx, deps.Store, input.Query, usedFormat, input.Limit+input.Offset)
		}
		if err != nil {
			return nil, asHumaError(err, "search failed")
		}

		items, err := deps.Composer.BuildSearchResults(ctx, records)
		if err != nil {
			return nil, asHumaError(err, "failed to merge search results")
		}

		total := len(items)
		if input.Offset < len(items) {
			items = items[input.Offset:]
		} else {
			items = nil
		}
		if len(items) > input.Limit {
			items = items[:input.Limit]
		}

		resp := &SearchOutput{}
		resp.Body.TotalApprox = total
		resp.Body.UsedFormat = string(usedFormat)
		resp.Body.Results = items
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "GetByDocid",
		Method:      "GET",
		Path:        "/v1/by-docid",
		Summary:     "Get citation by docid",
		Description: "Resolve a document identifier to one composite bibliographic item",
		Tags:        []string{"Search"},
	}, func(ctx context.Context, input *GetByDocidInput) (*ItemOutput, error) {
		item, err := deps.Composer.GetByDocid(ctx, input.Docid, input.Doctype)
		if err != nil {
			return nil, asHumaError(err, "failed to resolve docid")
		}
		return &ItemOutput{Body: *item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "GetLegacyRef",
		Method:      "GET",
		Path:        "/public/rfc/{dirname}/{filename}",
		Summary:     "Resolve legacy xml2rfc path",
		Description: "Resolve a legacy xml2rfc-style path (manual mapping, then namespace adapter, then archived snapshot)",
		Tags:        []string{"xml2rfc"},
	}, func(ctx context.Context, input *LegacyRefInput) (*PlainOutput, error) {
		m := legacyFilename.FindStringSubmatch(input.Filename)
		if m == nil {
			return nil, huma.Error404NotFound("not a legacy reference filename")
		}

		outcome, err := deps.Resolver.ResolvePath(ctx, input.Dirname, m[1], input.Anchor)
		if err != nil {
			return nil, asHumaError(err, "failed to resolve legacy path")
		}

		if outcome.XML != "" && !input.AsJSON {
			return &PlainOutput{
				ContentType: "application/xml",
				Body:        []byte(outcome.XML),
			}, nil
		}

		encoded, err := encodeJSON(outcome)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to encode resolution outcome")
		}
		return &PlainOutput{
			ContentType: "application/json",
			Body:        encoded,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ReverseLegacyPaths",
		Method:      "GET",
		Path:        "/v1/xml2rfc-paths",
		Summary:     "List legacy paths for a docid",
		Description: "Enumerate every legacy xml2rfc path that resolves to the given document, for cross-linking",
		Tags:        []string{"xml2rfc"},
		Security:    []map[string][]string{{"bearerAuth": {}}},
	}, func(ctx context.Context, input *ReversePathsInput) (*ReversePathsOutput, error) {
		item, err := deps.Composer.GetByDocid(ctx, input.Docid, input.Doctype)
		if err != nil {
			return nil, asHumaError(err, "failed to resolve docid")
		}
		resp := &ReversePathsOutput{}
		resp.Body.Paths = deps.Resolver.ReversePaths(item)
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ListSources",
		Method:      "GET",
		Path:        "/v1/sources",
		Summary:     "List data sources",
		Description: "List the indexed datasets contributing records",
		Tags:        []string{"Sources"},
	}, func(ctx context.Context, input *struct{}) (*SourcesOutput, error) {
		all, err := deps.Sources.List(ctx)
		if err != nil {
			return nil, asHumaError(err, "failed to list sources")
		}
		resp := &SourcesOutput{}
		resp.Body.Sources = all
		return resp, nil
	})
}

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// asHumaError maps the resolution error taxonomy onto HTTP statuses.
// Unknown errors become a generic 500 without leaking query internals.
func asHumaError(err error, publicMessage string) error {
	var ambiguous *bib.AmbiguousInputError
	var upstream *bib.UpstreamUnavailableError
	switch {
	case errors.Is(err, bib.ErrNotFound):
		return huma.Error404NotFound("no matching reference found")
	case errors.As(err, &ambiguous):
		return huma.Error400BadRequest(fmt.Sprintf("ambiguous input: %v", ambiguous))
	case errors.As(err, &upstream):
		return huma.Error502BadGateway(fmt.Sprintf("upstream %s unavailable", upstream.Service))
	default:
		return huma.Error500InternalServerError(publicMessage)
	}
}
