// Package domain defines punch rows and the storage ports for the device,
// manual, and unified punch stores plus the processed cursor
package domain

import (
	"context"
	"time"
)

// Punch provenance
const (
	SourceDevice = "device"
	SourceManual = "manual"
)

// Punch is one raw time event. ID is only meaningful on unified rows
type Punch struct {
	ID         int64
	EmployeeID string
	Time       time.Time

	// Direction is the raw hint as stored ("in"/"out"/vendor spellings);
	// resolution to a logical direction happens in roster
	Direction string

	Shortname string
	Serialno  string
	Source    string
}

// MergeResult tallies one unified-view merge pass
type MergeResult struct {
	Device int64
	Manual int64
}

// Cursor marks a position in the (log_datetime, id) stream. The zero value
// starts from the beginning
type Cursor struct {
	Time time.Time
	ID   int64
}

// After positions the cursor just past p
func (c Cursor) After(p Punch) Cursor { return Cursor{Time: p.Time, ID: p.ID} }

// Repo abstracts punch storage
type Repo interface {
	// InsertDeviceLog and InsertManualLog append a single punch and keep the
	// unified view in step so ad-hoc rows don't wait for the next merge pass
	InsertDeviceLog(ctx context.Context, p Punch) error
	InsertManualLog(ctx context.Context, p Punch) error

	// MergeDeviceLogs and MergeManualLogs upsert the whole source store into
	// the unified view, returning the number of rows written
	MergeDeviceLogs(ctx context.Context) (int64, error)
	MergeManualLogs(ctx context.Context) (int64, error)

	// ListUnprocessed returns unified punches not yet in the processed
	// cursor, ascending by (log time, id) past after, at most limit rows.
	// The position cursor lets a run move past punches it chose to skip
	ListUnprocessed(ctx context.Context, after Cursor, limit int) ([]Punch, error)

	// MarkProcessed adds ids to the processed cursor, ignoring duplicates
	MarkProcessed(ctx context.Context, ids []int64) error

	// ClearProcessed empties the cursor; recalculation path only
	ClearProcessed(ctx context.Context) error
}
