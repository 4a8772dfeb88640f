package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/compose"
	"github.com/iziplay/bibref-api/pkg/database"
	"gorm.io/gorm"
)

// Provider resolves dataset ids to display metadata from the data_sources
// table. Dataset names seen during ingestion may be alt names of a
// registered source.
type Provider struct {
	db *gorm.DB
}

// NewProvider returns a Provider over an open connection.
func NewProvider(db *gorm.DB) *Provider {
	return &Provider{db: db}
}

func (p *Provider) lookup(ctx context.Context, dataset string) (*database.DataSource, error) {
	var source database.DataSource
	err := p.db.WithContext(ctx).
		Where("id = ? OR ? = ANY(alt_names)", dataset, dataset).
		First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, bib.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

// SourceMeta returns provenance display metadata for a dataset.
func (p *Provider) SourceMeta(ctx context.Context, dataset string) (compose.SourceMeta, error) {
	source, err := p.lookup(ctx, dataset)
	if err != nil {
		return compose.SourceMeta{}, err
	}
	return compose.SourceMeta{
		ID:        source.ID,
		HomeURL:   source.HomeURL,
		IssuesURL: source.IssuesURL,
	}, nil
}

// IndexedObjectMeta returns the display name and external URL of one
// indexed object within a dataset.
func (p *Provider) IndexedObjectMeta(ctx context.Context, dataset, ref string) (compose.IndexedObjectMeta, error) {
	source, err := p.lookup(ctx, dataset)
	if err != nil {
		return compose.IndexedObjectMeta{}, err
	}
	meta := compose.IndexedObjectMeta{Name: ref}
	if source.RefURLTemplate != "" && strings.Contains(source.RefURLTemplate, "%s") {
		meta.ExternalURL = fmt.Sprintf(source.RefURLTemplate, ref)
	}
	return meta, nil
}

// List returns all registered data sources.
func (p *Provider) List(ctx context.Context) ([]database.DataSource, error) {
	var all []database.DataSource
	if err := p.db.WithContext(ctx).Order("id").Find(&all).Error; err != nil {
		return nil, err
	}
	return all, nil
}
