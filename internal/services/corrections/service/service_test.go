package service

import (
	"context"
	"testing"
	"time"

	"punchclock/internal/core/metrics"
	"punchclock/internal/modkit/repokit"
	"punchclock/internal/services/corrections/domain"
)

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

type fakeDB struct{}

func (fakeDB) Exec(context.Context, string, ...any) (repokit.CommandTag, error) { return nil, nil }
func (fakeDB) Query(context.Context, string, ...any) (repokit.Rows, error)      { return nil, nil }
func (fakeDB) QueryRow(context.Context, string, ...any) repokit.Row             { return nil }
func (fakeDB) Tx(ctx context.Context, fn func(q repokit.Queryer) error) error {
	return fn(fakeDB{})
}

type rowKey struct {
	emp  string
	date time.Time
}

type state struct {
	statuses    map[rowKey]string
	corrections []domain.Correction
	nextID      int64
}

func newState() *state { return &state{statuses: map[rowKey]string{}, nextID: 1} }

func (st *state) set(emp string, d time.Time, status string) {
	st.statuses[rowKey{emp, d}] = status
}

type fakeBinder struct{ st *state }

func (b fakeBinder) Bind(repokit.Queryer) domain.Repo { return fakeRepo{b.st} }

type fakeRepo struct{ st *state }

func (r fakeRepo) FindTriples(context.Context) ([]domain.Triple, error) {
	var out []domain.Triple
	for k, s := range r.st.statuses {
		if s != metrics.StatusAbsent {
			continue
		}
		d2, d3 := k.date.AddDate(0, 0, 1), k.date.AddDate(0, 0, 2)
		if r.st.statuses[rowKey{k.emp, d2}] != metrics.StatusWeekOff {
			continue
		}
		if r.st.statuses[rowKey{k.emp, d3}] != metrics.StatusAbsent {
			continue
		}
		if r.recorded(k.emp, d2) {
			continue
		}
		out = append(out, domain.Triple{EmployeeID: k.emp, Day1: k.date, Day2: d2, Day3: d3})
	}
	return out, nil
}

func (r fakeRepo) recorded(emp string, d2 time.Time) bool {
	for _, c := range r.st.corrections {
		if c.EmployeeID == emp && c.Day2.Equal(d2) {
			return true
		}
	}
	return false
}

func (r fakeRepo) SetStatus(_ context.Context, emp string, d time.Time, status string) error {
	r.st.statuses[rowKey{emp, d}] = status
	return nil
}

func (r fakeRepo) InsertCorrections(_ context.Context, triples []domain.Triple) error {
	for _, t := range triples {
		if r.recorded(t.EmployeeID, t.Day2) {
			continue
		}
		r.st.corrections = append(r.st.corrections, domain.Correction{ID: r.st.nextID, Triple: t})
		r.st.nextID++
	}
	return nil
}

func (r fakeRepo) ListCorrections(context.Context) ([]domain.Correction, error) {
	return append([]domain.Correction(nil), r.st.corrections...), nil
}

func (r fakeRepo) Statuses(_ context.Context, emp string, dates []time.Time) (map[time.Time]string, error) {
	out := map[time.Time]string{}
	for _, d := range dates {
		if s, ok := r.st.statuses[rowKey{emp, d}]; ok {
			out[d] = s
		}
	}
	return out, nil
}

func (r fakeRepo) DeleteCorrections(_ context.Context, ids []int64) error {
	drop := map[int64]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var keep []domain.Correction
	for _, c := range r.st.corrections {
		if !drop[c.ID] {
			keep = append(keep, c)
		}
	}
	r.st.corrections = keep
	return nil
}

func (r fakeRepo) DeleteAll(context.Context) error {
	r.st.corrections = nil
	return nil
}

func TestCorrectFlipsSandwichedWeekOff(t *testing.T) {
	st := newState()
	st.set("E1", day(11), metrics.StatusAbsent)
	st.set("E1", day(12), metrics.StatusWeekOff)
	st.set("E1", day(13), metrics.StatusAbsent)

	svc := New(fakeDB{}, fakeBinder{st})
	if err := svc.Correct(context.Background()); err != nil {
		t.Fatalf("correct: %v", err)
	}

	if got := st.statuses[rowKey{"E1", day(12)}]; got != metrics.StatusAbsent {
		t.Fatalf("middle day = %q, want A", got)
	}
	if len(st.corrections) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(st.corrections))
	}

	// a second pass finds nothing new
	if err := svc.Correct(context.Background()); err != nil {
		t.Fatalf("second correct: %v", err)
	}
	if len(st.corrections) != 1 {
		t.Fatalf("audit rows after rerun = %d, want 1", len(st.corrections))
	}
}

func TestRevertRoundtrip(t *testing.T) {
	st := newState()
	st.set("E1", day(11), metrics.StatusAbsent)
	st.set("E1", day(12), metrics.StatusWeekOff)
	st.set("E1", day(13), metrics.StatusAbsent)

	svc := New(fakeDB{}, fakeBinder{st})
	if err := svc.Correct(context.Background()); err != nil {
		t.Fatalf("correct: %v", err)
	}

	// a late punch turns day3 present; the flip no longer holds
	st.set("E1", day(13), metrics.StatusPresent)
	if err := svc.Revert(context.Background()); err != nil {
		t.Fatalf("revert: %v", err)
	}

	if got := st.statuses[rowKey{"E1", day(12)}]; got != metrics.StatusWeekOff {
		t.Fatalf("middle day = %q, want WO restored", got)
	}
	if len(st.corrections) != 0 {
		t.Fatalf("audit rows = %d, want evaluated row dropped", len(st.corrections))
	}
}

func TestRevertKeepsValidCorrections(t *testing.T) {
	st := newState()
	st.set("E1", day(11), metrics.StatusAbsent)
	st.set("E1", day(12), metrics.StatusWeekOff)
	st.set("E1", day(13), metrics.StatusAbsent)

	svc := New(fakeDB{}, fakeBinder{st})
	if err := svc.Correct(context.Background()); err != nil {
		t.Fatalf("correct: %v", err)
	}
	if err := svc.Revert(context.Background()); err != nil {
		t.Fatalf("revert: %v", err)
	}

	if got := st.statuses[rowKey{"E1", day(12)}]; got != metrics.StatusAbsent {
		t.Fatalf("middle day = %q, want corrected A kept", got)
	}
	if len(st.corrections) != 1 {
		t.Fatalf("audit rows = %d, want the still-valid row kept", len(st.corrections))
	}
}

func TestRevertIgnoresManuallyChangedMiddle(t *testing.T) {
	st := newState()
	st.set("E1", day(11), metrics.StatusAbsent)
	st.set("E1", day(12), metrics.StatusWeekOff)
	st.set("E1", day(13), metrics.StatusAbsent)

	svc := New(fakeDB{}, fakeBinder{st})
	if err := svc.Correct(context.Background()); err != nil {
		t.Fatalf("correct: %v", err)
	}

	// someone set the middle to P by hand; the reverter must not touch it
	st.set("E1", day(12), metrics.StatusPresent)
	st.set("E1", day(13), metrics.StatusPresent)
	if err := svc.Revert(context.Background()); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if got := st.statuses[rowKey{"E1", day(12)}]; got != metrics.StatusPresent {
		t.Fatalf("middle day = %q, want untouched P", got)
	}
}
