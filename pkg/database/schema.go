package database

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type Model struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefData is one raw indexed bibliographic record from one source dataset.
// The ingestion pipeline owns these rows; the resolution engine only reads
// them. (Ref, Dataset) is unique.
type RefData struct {
	Model

	Ref        string            `json:"ref" gorm:"primaryKey"`
	Dataset    string            `json:"dataset" gorm:"primaryKey;index:idx_ref_data_dataset"`
	Body       datatypes.JSONMap `json:"body" gorm:"type:jsonb"`
	LatestDate time.Time         `json:"latestDate"`
}

// DataSource describes one indexed dataset: where it lives and how to link
// back to the indexed object for a given ref.
type DataSource struct {
	Model

	ID        string         `json:"id" gorm:"primaryKey"`
	HomeURL   string         `json:"homeURL"`
	IssuesURL string         `json:"issuesURL"`
	AltNames  pq.StringArray `json:"altNames" gorm:"type:text[]"`

	// RefURLTemplate builds an external URL for a ref, e.g.
	// "https://github.com/ietf-tools/relaton-data-rfcs/blob/main/data/%s.yaml"
	RefURLTemplate string `json:"refURLTemplate"`
}

// Xml2rfcMapping is an administrator-managed manual override: a legacy
// xml2rfc subpath pinned to an explicit docid. Read-only to the resolver.
type Xml2rfcMapping struct {
	Model

	Subpath string `json:"subpath" gorm:"primaryKey;column:xml2rfc_subpath"`
	Docid   string `json:"docid"`
}

// Xml2rfcArchivedRef is a pre-captured XML snapshot for a legacy subpath,
// served verbatim when structured resolution fails.
type Xml2rfcArchivedRef struct {
	Model

	Subpath string            `json:"subpath" gorm:"primaryKey"`
	XML     string            `json:"xml" gorm:"column:xml;type:text"`
	Sidecar datatypes.JSONMap `json:"sidecar" gorm:"type:jsonb"`
}

// SidecarPrimaryDocid returns the primary docid recorded in the archived
// snapshot's sidecar metadata, if any.
func (a *Xml2rfcArchivedRef) SidecarPrimaryDocid() string {
	if a.Sidecar == nil {
		return ""
	}
	s, _ := a.Sidecar["primary_docid"].(string)
	return s
}

// SidecarInvalid reports whether the snapshot was marked invalid at
// capture time.
func (a *Xml2rfcArchivedRef) SidecarInvalid() bool {
	if a.Sidecar == nil {
		return false
	}
	b, _ := a.Sidecar["invalid"].(bool)
	return b
}
