package service

import (
	"context"
	"testing"
	"time"

	"punchclock/internal/core/metrics"
	"punchclock/internal/modkit/repokit"
	"punchclock/internal/services/absentee/domain"
	rosterdom "punchclock/internal/services/roster/domain"
)

var kolkata = mustLoad("Asia/Kolkata")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, kolkata) }

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
	rows   map[rowKey]string
	writes int
}

func newState() *state { return &state{rows: map[rowKey]string{}} }

type fakeBinder struct{ st *state }

func (b fakeBinder) Bind(repokit.Queryer) domain.Repo { return fakeRepo{b.st} }

type fakeRepo struct{ st *state }

func (r fakeRepo) ExistingEmployees(_ context.Context, date time.Time) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for k := range r.st.rows {
		if k.date.Equal(date) {
			out[k.emp] = struct{}{}
		}
	}
	return out, nil
}

func (r fakeRepo) InsertGaps(_ context.Context, rows []domain.GapRow) error {
	for _, g := range rows {
		k := rowKey{g.EmployeeID, g.LogDate}
		if _, ok := r.st.rows[k]; ok {
			continue
		}
		r.st.rows[k] = g.Status
		r.st.writes++
	}
	return nil
}

type fakeRoster struct{ snap *rosterdom.Snapshot }

func (f fakeRoster) Snapshot(context.Context) (*rosterdom.Snapshot, error) { return f.snap, nil }
func (f fakeRoster) DefaultWeekOffs() []int                                { return []int{6} }

func newSweeper(snap *rosterdom.Snapshot, st *state, today time.Time) *Svc {
	return New(fakeDB{}, fakeBinder{st}, fakeRoster{snap}, Config{
		Days: 7,
		Loc:  kolkata,
		Now:  func() time.Time { return today },
	})
}

func snapshot(emps ...rosterdom.Employee) *rosterdom.Snapshot {
	snap := &rosterdom.Snapshot{
		Employees: map[string]rosterdom.Employee{},
		Holidays:  map[time.Time]metrics.HolidayKind{},
	}
	for _, e := range emps {
		snap.Employees[e.ID] = e
	}
	return snap
}

func TestSweepClassifiesDays(t *testing.T) {
	snap := snapshot(rosterdom.Employee{ID: "E6"})
	snap.Holidays[day(11)] = metrics.HolidayPaid // Monday the 11th

	st := newState()
	if err := newSweeper(snap, st, day(17)).Sweep(context.Background(), 7); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// holiday date carries the holiday type
	if got := st.rows[rowKey{"E6", day(11)}]; got != string(metrics.HolidayPaid) {
		t.Fatalf("holiday status = %q, want PH", got)
	}
	// the 17th is a Sunday, the default week off
	if got := st.rows[rowKey{"E6", day(17)}]; got != metrics.StatusWeekOff {
		t.Fatalf("sunday status = %q, want WO", got)
	}
	// a plain weekday goes absent
	if got := st.rows[rowKey{"E6", day(12)}]; got != metrics.StatusAbsent {
		t.Fatalf("weekday status = %q, want A", got)
	}
	if len(st.rows) != 7 {
		t.Fatalf("rows = %d, want one per swept day", len(st.rows))
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	snap := snapshot(rosterdom.Employee{ID: "E6"})
	st := newState()
	sw := newSweeper(snap, st, day(17))

	if err := sw.Sweep(context.Background(), 7); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	firstWrites := st.writes

	if err := sw.Sweep(context.Background(), 7); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if st.writes != firstWrites {
		t.Fatalf("second sweep wrote %d new rows, want 0", st.writes-firstWrites)
	}
}

func TestSweepNeverOverwrites(t *testing.T) {
	snap := snapshot(rosterdom.Employee{ID: "E6"})
	st := newState()
	st.rows[rowKey{"E6", day(12)}] = metrics.StatusPresent

	if err := newSweeper(snap, st, day(17)).Sweep(context.Background(), 7); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := st.rows[rowKey{"E6", day(12)}]; got != metrics.StatusPresent {
		t.Fatalf("existing aggregate overwritten: %q", got)
	}
}

func TestSweepHonorsEmploymentWindow(t *testing.T) {
	join := day(15)
	snap := snapshot(rosterdom.Employee{ID: "E7", JoinDate: &join})
	st := newState()

	if err := newSweeper(snap, st, day(17)).Sweep(context.Background(), 7); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, ok := st.rows[rowKey{"E7", day(12)}]; ok {
		t.Fatal("pre-join day must not be materialized")
	}
	if _, ok := st.rows[rowKey{"E7", day(15)}]; !ok {
		t.Fatal("join day should be materialized")
	}
}

func TestSweepEmployeeWeekOffOverride(t *testing.T) {
	// first weekly off Wednesday (index 2); Sunday default no longer applies
	wed := 2
	snap := snapshot(rosterdom.Employee{ID: "E8", FirstWeekOff: &wed})
	st := newState()

	if err := newSweeper(snap, st, day(17)).Sweep(context.Background(), 7); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := st.rows[rowKey{"E8", day(13)}]; got != metrics.StatusWeekOff {
		t.Fatalf("wednesday status = %q, want WO", got)
	}
	if got := st.rows[rowKey{"E8", day(17)}]; got != metrics.StatusAbsent {
		t.Fatalf("sunday status = %q, want A with an overridden week off", got)
	}
}
