// Package domain defines the external-ingestion types: the upstream
// credential record and its field-name mappings
package domain

import (
	"context"
	"time"

	"punchclock/internal/platform/store"
)

// FieldMap names the six upstream columns we pull
type FieldMap struct {
	ID          string
	EmployeeID  string
	Direction   string
	Shortname   string
	Serialno    string
	LogDatetime string
}

// Credential is the single upstream configuration record
type Credential struct {
	store.UpstreamConfig

	Table  string
	Fields FieldMap
}

// Row is one upstream punch as pulled
type Row struct {
	ID         int64
	EmployeeID string
	Direction  string
	Shortname  string
	Serialno   string
	Time       time.Time
}

// Repo abstracts the system-of-record side of external sync
type Repo interface {
	// LoadCredential returns the configured upstream, ok=false when no row exists
	LoadCredential(ctx context.Context) (Credential, bool, error)

	// MaxExternalID returns the highest already-ingested upstream id
	MaxExternalID(ctx context.Context) (int64, error)

	// UpsertBatch writes pulled rows into the device punch store keyed by
	// upstream id; non-key fields only move forward in log time
	UpsertBatch(ctx context.Context, rows []Row) error
}
