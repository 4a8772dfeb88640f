package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iziplay/bibref-api/pkg/bib"
	"gorm.io/gorm"
)

// Store wraps the gorm connection with the read-only queries the
// resolution engine needs. All methods bound results by the caller's
// limit and honor context cancellation.
type Store struct {
	db *gorm.DB
}

// NewStore returns a Store over an open connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// QueryContainment finds records whose JSONB body contains the given
// fragment verbatim (case-sensitive, `@>` semantics).
func (s *Store) QueryContainment(ctx context.Context, fragment map[string]any, limit int) ([]RefData, error) {
	encoded, err := json.Marshal(fragment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode containment fragment: %w", err)
	}

	var records []RefData
	err = s.db.WithContext(ctx).
		Where("body @> ?::jsonb", string(encoded)).
		Order("latest_date DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, classifyStoreError(string(encoded), err)
	}
	return records, nil
}

// QueryPathPredicate finds records for which the jsonpath expression
// `fieldPath ? (predicate)` holds over the body. An empty predicate runs
// the field path as a bare existence test.
func (s *Store) QueryPathPredicate(ctx context.Context, fieldPath, predicate string, limit int) ([]RefData, error) {
	expr := fieldPath
	if predicate != "" {
		expr = fmt.Sprintf("%s ? (%s)", fieldPath, predicate)
	}

	var records []RefData
	err := s.db.WithContext(ctx).
		Where("jsonb_path_exists(body, ?::jsonpath)", expr).
		Order("latest_date DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, classifyStoreError(expr, err)
	}
	return records, nil
}

// QueryFullText runs a web-search style query (quoted phrases, -negation,
// OR) over the whole record body.
func (s *Store) QueryFullText(ctx context.Context, text string, limit int) ([]RefData, error) {
	var records []RefData
	err := s.db.WithContext(ctx).
		Where("to_tsvector('english', body::text) @@ websearch_to_tsquery('english', ?)", text).
		Order("latest_date DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, classifyStoreError(text, err)
	}
	return records, nil
}

// GetByKey fetches one record by its (ref, dataset) identity.
func (s *Store) GetByKey(ctx context.Context, ref, dataset string) (*RefData, error) {
	var record RefData
	err := s.db.WithContext(ctx).
		Where("ref = ? AND dataset = ?", ref, dataset).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, bib.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetXml2rfcMapping looks up a manual override row for a legacy subpath.
func (s *Store) GetXml2rfcMapping(ctx context.Context, subpath string) (*Xml2rfcMapping, error) {
	var mapping Xml2rfcMapping
	err := s.db.WithContext(ctx).
		Where("xml2rfc_subpath = ?", subpath).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, bib.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// GetXml2rfcArchivedRef looks up a pre-captured fallback snapshot.
func (s *Store) GetXml2rfcArchivedRef(ctx context.Context, subpath string) (*Xml2rfcArchivedRef, error) {
	var archived Xml2rfcArchivedRef
	err := s.db.WithContext(ctx).
		Where("subpath = ?", subpath).
		First(&archived).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, bib.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &archived, nil
}
