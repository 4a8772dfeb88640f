package xml2rfc

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/compose"
)

// MethodAttempt records one pipeline stage for observability: what was
// tried, with which configuration, and how it failed (empty on success).
type MethodAttempt struct {
	Method string `json:"method"`
	Config string `json:"config,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Outcome is the result of resolving one legacy path. Exactly one of
// Item and XML is set: XML only when the archived fallback served the
// request.
type Outcome struct {
	Item   *compose.Item   `json:"item,omitempty"`
	XML    string          `json:"-"`
	Anchor string          `json:"anchor"`
	Method string          `json:"method"`
	Trace  []MethodAttempt `json:"trace"`
}

// Resolver runs the legacy path pipeline: manual mapping, then the
// namespace adapter, then the archived snapshot. Each stage is attempted
// at most once; the first success wins.
type Resolver struct {
	store    RecordStore
	composer Composer
	registry *Registry
}

func NewResolver(store RecordStore, composer Composer, registry *Registry) *Resolver {
	return &Resolver{store: store, composer: composer, registry: registry}
}

// ResolvePath resolves "{dirname}/reference.{anchor}.xml". anchorOverride,
// when non-empty, replaces the anchor in the response (including inside
// archived XML). Returns bib.ErrNotFound with the collected trace when
// every stage is exhausted.
func (r *Resolver) ResolvePath(ctx context.Context, dirname, anchor, anchorOverride string) (*Outcome, error) {
	dirname = r.registry.Canonical(dirname)
	subpath := fmt.Sprintf("%s/reference.%s.xml", dirname, anchor)

	outcome := &Outcome{Anchor: anchor}

	if item, attempt := r.tryManual(ctx, subpath); item != nil {
		outcome.Item = item
		outcome.Method = attempt.Method
		outcome.Trace = append(outcome.Trace, attempt)
		r.finishAnchor(outcome, dirname, anchorOverride)
		return outcome, nil
	} else {
		outcome.Trace = append(outcome.Trace, attempt)
	}

	item, attempt, err := r.tryAuto(ctx, dirname, anchor)
	outcome.Trace = append(outcome.Trace, attempt)
	if err != nil {
		return outcome, err
	}
	if item != nil {
		outcome.Item = item
		outcome.Method = attempt.Method
		r.finishAnchor(outcome, dirname, anchorOverride)
		return outcome, nil
	}

	if xml, attempt := r.tryFallback(ctx, subpath, anchorOverride); xml != "" {
		outcome.XML = xml
		outcome.Method = attempt.Method
		outcome.Trace = append(outcome.Trace, attempt)
		if anchorOverride != "" {
			outcome.Anchor = anchorOverride
		}
		return outcome, nil
	} else {
		outcome.Trace = append(outcome.Trace, attempt)
	}

	return outcome, bib.ErrNotFound
}

// tryManual resolves via the administrator-managed mapping table. A
// mapping that exists but fails to resolve is an error in the trace, not
// a pipeline abort.
func (r *Resolver) tryManual(ctx context.Context, subpath string) (*compose.Item, MethodAttempt) {
	attempt := MethodAttempt{Method: "manual_mapping"}

	mapping, err := r.store.GetXml2rfcMapping(ctx, subpath)
	if err != nil {
		if errors.Is(err, bib.ErrNotFound) {
			attempt.Error = "no mapping for path"
		} else {
			attempt.Error = err.Error()
		}
		return nil, attempt
	}

	attempt.Config = mapping.Docid
	item, err := r.composer.GetByDocid(ctx, mapping.Docid, "")
	if err != nil {
		attempt.Error = fmt.Sprintf("mapped docid failed to resolve: %v", err)
		return nil, attempt
	}
	return item, attempt
}

// tryAuto resolves via the namespace's registered adapter. A stage
// failure leaves the error in the trace and returns a nil error so the
// pipeline advances; an unavailable external API that is the namespace's
// only source (DOI) is terminal and returned as the third value.
func (r *Resolver) tryAuto(ctx context.Context, dirname, anchor string) (*compose.Item, MethodAttempt, error) {
	attempt := MethodAttempt{Method: "auto_adapter", Config: dirname}

	adapter, ok := r.registry.Adapter(dirname)
	if !ok {
		attempt.Error = fmt.Sprintf("no adapter for directory %q", dirname)
		return nil, attempt, nil
	}

	if resolver, ok := adapter.(ItemResolver); ok {
		item, err := resolver.ResolveItem(ctx, anchor)
		if err != nil {
			attempt.Error = err.Error()
			var upstream *bib.UpstreamUnavailableError
			if errors.As(err, &upstream) {
				return nil, attempt, err
			}
			return nil, attempt, nil
		}
		return item, attempt, nil
	}

	refs, err := adapter.FetchRefs(ctx, anchor)
	if err != nil {
		attempt.Error = err.Error()
		return nil, attempt, nil
	}
	if len(refs) == 0 {
		attempt.Error = "no indexed records match anchor"
		return nil, attempt, nil
	}

	items, err := r.composer.BuildSearchResults(ctx, refs)
	if err != nil {
		attempt.Error = err.Error()
		return nil, attempt, nil
	}
	if len(items) == 0 {
		attempt.Error = "matched records produced no composite item"
		return nil, attempt, nil
	}
	return items[0], attempt, nil
}

// tryFallback serves the pre-captured XML snapshot verbatim, with only
// the anchor attribute rewritten when an override was requested.
func (r *Resolver) tryFallback(ctx context.Context, subpath, anchorOverride string) (string, MethodAttempt) {
	attempt := MethodAttempt{Method: "archived_fallback", Config: subpath}

	archived, err := r.store.GetXml2rfcArchivedRef(ctx, subpath)
	if err != nil {
		if errors.Is(err, bib.ErrNotFound) {
			attempt.Error = "no archived snapshot for path"
		} else {
			attempt.Error = err.Error()
		}
		return "", attempt
	}

	if archived.SidecarInvalid() {
		attempt.Error = "archived snapshot marked invalid"
		return "", attempt
	}
	if docid := archived.SidecarPrimaryDocid(); docid != "" {
		attempt.Config = fmt.Sprintf("%s docid=%s", subpath, docid)
	}

	xml := archived.XML
	if anchorOverride != "" {
		xml = rewriteAnchorAttr(xml, anchorOverride)
	}
	return xml, attempt
}

// finishAnchor canonicalizes the response anchor via the adapter (a
// versionless draft request comes back with the resolved version) and
// applies any caller override last.
func (r *Resolver) finishAnchor(outcome *Outcome, dirname, anchorOverride string) {
	if adapter, ok := r.registry.Adapter(dirname); ok && outcome.Item != nil {
		if canonical := adapter.FormatAnchor(outcome.Item); canonical != "" {
			outcome.Anchor = canonical
		}
	}
	if anchorOverride != "" {
		outcome.Anchor = anchorOverride
	}
}

var anchorAttr = regexp.MustCompile(`anchor="[^"]*"`)

func rewriteAnchorAttr(xml, anchor string) string {
	replaced := false
	return anchorAttr.ReplaceAllStringFunc(xml, func(m string) string {
		if replaced {
			return m
		}
		replaced = true
		return fmt.Sprintf("anchor=%q", anchor)
	})
}
