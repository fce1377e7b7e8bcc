// Package model contains the data shapes shared by every part of the sync engine.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the content type of a source item and selects its parser.
type Kind string

const (
	// KindSpreadsheet is a tabular file (CSV, Google Sheet export)
	KindSpreadsheet Kind = "spreadsheet"
	// KindMarkdown is a markdown article
	KindMarkdown Kind = "markdown"
	// KindDocument is a word-processor document exported as plain text
	KindDocument Kind = "document"
	// KindPDF is a PDF file, tracked by metadata only
	KindPDF Kind = "pdf"
	// KindText is a plain text file
	KindText Kind = "text"
	// KindVideo is a video file, tracked by metadata only
	KindVideo Kind = "video"
	// KindRow is a single row of a spreadsheet container
	KindRow Kind = "row"
	// KindFile is any other file, tracked by metadata only
	KindFile Kind = "file"
)

// NeedsContent reports whether items of this kind must be downloaded to be parsed.
func (k Kind) NeedsContent() bool {
	switch k {
	case KindSpreadsheet, KindMarkdown, KindDocument, KindText, KindRow:
		return true
	default:
		return false
	}
}

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindSpreadsheet, KindMarkdown, KindDocument, KindPDF, KindText, KindVideo, KindRow, KindFile:
		return true
	default:
		return false
	}
}

// RecordStatus is the lifecycle state of a Record.
type RecordStatus string

const (
	// StatusActive records are rendered into artifacts
	StatusActive RecordStatus = "active"
	// StatusProcessing marks a record whose attempt is in flight
	StatusProcessing RecordStatus = "processing"
	// StatusError records failed their last attempt
	StatusError RecordStatus = "error"
	// StatusDeleted records were removed from the source
	StatusDeleted RecordStatus = "deleted"
)

// Source types a folder can be mapped to.
const (
	SourceDrive  = "drive"
	SourceSheets = "sheets"
	SourceLocal  = "local"
	SourceGit    = "git"
)

// Tenant is an isolated organization whose records and artifacts never mix with another tenant's.
type Tenant struct {
	ID              uuid.UUID  `json:"id"`
	Key             string     `json:"key"`
	Name            string     `json:"name"`
	OutputPath      string     `json:"output_path"`
	Enabled         bool       `json:"enabled"`
	CredentialsFile string     `json:"-"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
}

// FolderConfig maps a named folder of a tenant to one external container.
type FolderConfig struct {
	TenantID      uuid.UUID  `json:"tenant_id"`
	Name          string     `json:"name"`
	Source        string     `json:"source"`
	ContainerID   string     `json:"container_id"`
	Template      string     `json:"template"`
	Enabled       bool       `json:"enabled"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// Record is the normalized representation of one external item.
// At most one record exists per (TenantID, FolderName, ExternalID).
type Record struct {
	ID                 int64           `json:"id"`
	TenantID           uuid.UUID       `json:"tenant_id"`
	FolderName         string          `json:"folder_name"`
	ExternalID         string          `json:"external_id"`
	Name               string          `json:"name"`
	Kind               Kind            `json:"kind"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	Fragment           string          `json:"-"`
	FragmentTemplate   string          `json:"-"`
	Fingerprint        string          `json:"fingerprint"`
	AttemptFingerprint string          `json:"attempt_fingerprint,omitempty"`
	Status             RecordStatus    `json:"status"`
	ErrorDetail        string          `json:"error_detail,omitempty"`
	RetryCount         int             `json:"retry_count"`
	FirstSeenAt        time.Time       `json:"first_seen_at"`
	LastChangedAt      time.Time       `json:"last_changed_at"`
	LastAttemptedAt    *time.Time      `json:"last_attempted_at,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Payload != nil {
		c.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	if r.LastAttemptedAt != nil {
		t := *r.LastAttemptedAt
		c.LastAttemptedAt = &t
	}
	return &c
}

// Links carries provider URLs attached to an item.
type Links struct {
	View      string `json:"web_view_link,omitempty"`
	Download  string `json:"download_link,omitempty"`
	Thumbnail string `json:"thumbnail_link,omitempty"`
}

// ItemRef is one entry of a container listing.
type ItemRef struct {
	ExternalID   string
	Name         string
	Kind         Kind
	MimeType     string
	LastModified time.Time
	Size         int64
	Checksum     string
	Links        Links
}

// RawItem is the fetched content of an item together with its listing metadata.
type RawItem struct {
	Ref     ItemRef
	Content []byte
}

// RowContent is the raw content of one spreadsheet row item: the sheet header
// and the row's values, padded to the header length.
type RowContent struct {
	Columns []string `json:"columns"`
	Values  []string `json:"values"`
}

// Sync log operations.
const (
	OpCycle   = "cycle"
	OpTenant  = "tenant"
	OpFolder  = "folder"
	OpList    = "list"
	OpCreated = "created"
	OpUpdated = "updated"
	OpRemoved = "removed"
	OpError   = "error"
	OpRender  = "render"
)

// Sync log outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// SyncLogEntry is an immutable audit record of one engine operation.
type SyncLogEntry struct {
	ID          int64         `json:"id"`
	TenantID    *uuid.UUID    `json:"tenant_id,omitempty"`
	Operation   string        `json:"operation"`
	FolderName  string        `json:"folder_name,omitempty"`
	ExternalID  string        `json:"external_id,omitempty"`
	ItemName    string        `json:"item_name,omitempty"`
	Outcome     string        `json:"outcome"`
	Message     string        `json:"message,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}

// FolderStats summarizes the records of one folder.
type FolderStats struct {
	TenantKey     string     `json:"tenant"`
	FolderName    string     `json:"folder"`
	Enabled       bool       `json:"enabled"`
	Active        int        `json:"active"`
	Errors        int        `json:"errors"`
	Terminal      int        `json:"terminal"`
	Deleted       int        `json:"deleted"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}
