package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"punchclock/internal/core/metrics"
	"punchclock/internal/core/shiftwindow"
	"punchclock/internal/modkit/repokit"
	ptime "punchclock/internal/platform/time"
	"punchclock/internal/services/attendance/domain"
	punchdom "punchclock/internal/services/punches/domain"
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

func at(d, hh, mm int) time.Time {
	return time.Date(2024, 3, d, hh, mm, 0, 0, kolkata)
}

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, kolkata) }

// fakeDB satisfies repokit.TxRunner; transactions just invoke the closure
type fakeDB struct{}

func (fakeDB) Exec(context.Context, string, ...any) (repokit.CommandTag, error) { return nil, nil }
func (fakeDB) Query(context.Context, string, ...any) (repokit.Rows, error)      { return nil, nil }
func (fakeDB) QueryRow(context.Context, string, ...any) repokit.Row             { return nil }
func (fakeDB) Tx(ctx context.Context, fn func(q repokit.Queryer) error) error {
	return fn(fakeDB{})
}

type aggKey struct {
	emp  string
	date time.Time
}

type aggState struct {
	rows map[aggKey]domain.Aggregate
}

func newAggState() *aggState { return &aggState{rows: map[aggKey]domain.Aggregate{}} }

func (st *aggState) get(emp string, d time.Time) (domain.Aggregate, bool) {
	a, ok := st.rows[aggKey{emp, d}]
	return a, ok
}

type fakeAggBinder struct{ st *aggState }

func (b fakeAggBinder) Bind(repokit.Queryer) domain.Repo { return fakeAggRepo{b.st} }

type fakeAggRepo struct{ st *aggState }

func (r fakeAggRepo) GetForUpdate(_ context.Context, emp string, d time.Time) (domain.Aggregate, bool, error) {
	a, ok := r.st.rows[aggKey{emp, d}]
	return a, ok, nil
}

func (r fakeAggRepo) Upsert(_ context.Context, a domain.Aggregate) error {
	r.st.rows[aggKey{a.EmployeeID, a.LogDate}] = a
	return nil
}

func (r fakeAggRepo) DeleteAll(context.Context) error {
	r.st.rows = map[aggKey]domain.Aggregate{}
	return nil
}

type punchState struct {
	punches   []punchdom.Punch
	processed map[int64]bool
}

func newPunchState(ps ...punchdom.Punch) *punchState {
	return &punchState{punches: ps, processed: map[int64]bool{}}
}

type fakePunchBinder struct{ st *punchState }

func (b fakePunchBinder) Bind(repokit.Queryer) punchdom.Repo { return fakePunchRepo{b.st} }

type fakePunchRepo struct{ st *punchState }

func (r fakePunchRepo) InsertDeviceLog(context.Context, punchdom.Punch) error { return nil }
func (r fakePunchRepo) InsertManualLog(context.Context, punchdom.Punch) error { return nil }
func (r fakePunchRepo) MergeDeviceLogs(context.Context) (int64, error)        { return 0, nil }
func (r fakePunchRepo) MergeManualLogs(context.Context) (int64, error)        { return 0, nil }

func (r fakePunchRepo) ListUnprocessed(_ context.Context, after punchdom.Cursor, limit int) ([]punchdom.Punch, error) {
	var out []punchdom.Punch
	for _, p := range r.st.punches {
		if r.st.processed[p.ID] {
			continue
		}
		if p.Time.Before(after.Time) || (p.Time.Equal(after.Time) && p.ID <= after.ID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakePunchRepo) MarkProcessed(_ context.Context, ids []int64) error {
	for _, id := range ids {
		r.st.processed[id] = true
	}
	return nil
}

func (r fakePunchRepo) ClearProcessed(context.Context) error {
	r.st.processed = map[int64]bool{}
	return nil
}

type fakeRoster struct{ snap *rosterdom.Snapshot }

func (f fakeRoster) Snapshot(context.Context) (*rosterdom.Snapshot, error) { return f.snap, nil }
func (f fakeRoster) DefaultWeekOffs() []int                                { return []int{6} }

func generalShift() shiftwindow.Shift {
	half := 4 * time.Hour
	return shiftwindow.Shift{
		Name:                 "GS",
		Start:                ptime.Clock(9, 0),
		End:                  ptime.Clock(18, 0),
		ToleranceBeforeStart: 30 * time.Minute,
		ToleranceAfterStart:  time.Hour,
		GraceAtStart:         15 * time.Minute,
		GraceAtEnd:           15 * time.Minute,
		OvertimeBeforeStart:  time.Hour,
		HalfDayThreshold:     &half,
		FullDayThreshold:     8 * time.Hour,
	}
}

func nightShift() shiftwindow.Shift {
	return shiftwindow.Shift{
		Name:                 "NS",
		Start:                ptime.Clock(22, 0),
		End:                  ptime.Clock(6, 0),
		ToleranceBeforeStart: 30 * time.Minute,
		ToleranceAfterStart:  30 * time.Minute,
	}
}

func snapshot(shifts []shiftwindow.Shift, emps ...rosterdom.Employee) *rosterdom.Snapshot {
	snap := &rosterdom.Snapshot{
		Employees:  map[string]rosterdom.Employee{},
		Shifts:     map[string]shiftwindow.Shift{},
		ShiftOrder: shifts,
		Holidays:   map[time.Time]metrics.HolidayKind{},
		Devices: map[rosterdom.DeviceKey]rosterdom.Direction{
			{Shortname: "gate-in", Serialno: "D1"}:   rosterdom.DirectionIn,
			{Shortname: "gate-out", Serialno: "D2"}:  rosterdom.DirectionOut,
			{Shortname: "turnstile", Serialno: "D3"}: rosterdom.DirectionBoth,
		},
	}
	sort.Slice(snap.ShiftOrder, func(i, j int) bool { return snap.ShiftOrder[i].Name < snap.ShiftOrder[j].Name })
	for _, sh := range shifts {
		snap.Shifts[sh.Name] = sh
	}
	for _, e := range emps {
		snap.Employees[e.ID] = e
	}
	return snap
}

func newProcessor(snap *rosterdom.Snapshot, aggs *aggState, feed *punchState) *Svc {
	return New(fakeDB{}, fakeAggBinder{aggs}, fakePunchBinder{feed}, fakeRoster{snap},
		Config{BatchSize: 100, Loc: kolkata})
}

func manualIn(id int64, emp string, t time.Time) punchdom.Punch {
	return punchdom.Punch{ID: id, EmployeeID: emp, Time: t, Direction: "in", Source: punchdom.SourceManual}
}

func manualOut(id int64, emp string, t time.Time) punchdom.Punch {
	return punchdom.Punch{ID: id, EmployeeID: emp, Time: t, Direction: "out", Source: punchdom.SourceManual}
}

func TestRunHappyDayFixedShift(t *testing.T) {
	snap := snapshot([]shiftwindow.Shift{generalShift()},
		rosterdom.Employee{ID: "E1", ShiftName: "GS"})
	aggs := newAggState()
	feed := newPunchState(
		punchdom.Punch{ID: 1, EmployeeID: "E1", Time: at(11, 8, 58), Shortname: "gate-in", Serialno: "D1", Source: punchdom.SourceDevice},
		punchdom.Punch{ID: 2, EmployeeID: "E1", Time: at(11, 18, 22), Shortname: "gate-out", Serialno: "D2", Source: punchdom.SourceDevice},
	)

	if err := newProcessor(snap, aggs, feed).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	agg, ok := aggs.get("E1", day(11))
	if !ok {
		t.Fatal("aggregate missing")
	}
	if agg.Status != metrics.StatusPresent {
		t.Fatalf("status = %q, want P", agg.Status)
	}
	if !agg.First.Equal(at(11, 8, 58)) || !agg.Last.Equal(at(11, 18, 22)) {
		t.Fatalf("pair = %s / %s", agg.First, agg.Last)
	}
	if agg.TotalTime == nil || *agg.TotalTime != 9*time.Hour+24*time.Minute {
		t.Fatalf("total = %v, want 9h24m", agg.TotalTime)
	}
	if agg.Overtime == nil || *agg.Overtime != 22*time.Minute {
		t.Fatalf("overtime = %v, want 22m", agg.Overtime)
	}
	if agg.InShortname != "gate-in" || agg.OutShortname != "gate-out" {
		t.Fatalf("shortnames = %q/%q", agg.InShortname, agg.OutShortname)
	}
	if !feed.processed[1] || !feed.processed[2] {
		t.Fatal("punches not marked processed")
	}
}

func TestRunNightShiftPreviousDay(t *testing.T) {
	snap := snapshot([]shiftwindow.Shift{nightShift()},
		rosterdom.Employee{ID: "E3", ShiftName: "NS"})
	aggs := newAggState()
	feed := newPunchState(manualIn(1, "E3", at(12, 1, 15)))

	if err := newProcessor(snap, aggs, feed).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	agg, ok := aggs.get("E3", day(11))
	if !ok {
		t.Fatal("aggregate should attach to the shift-start date")
	}
	if agg.Shift != "NS" || agg.Status != metrics.StatusMissingPunch {
		t.Fatalf("shift=%q status=%q", agg.Shift, agg.Status)
	}
	if !agg.First.Equal(at(12, 1, 15)) {
		t.Fatalf("first = %s", agg.First)
	}
	if _, ok := aggs.get("E3", day(12)); ok {
		t.Fatal("no aggregate should exist on the punch's calendar date")
	}
}

func TestRunInAfterOutReconciliation(t *testing.T) {
	snap := snapshot([]shiftwindow.Shift{generalShift()},
		rosterdom.Employee{ID: "E4", ShiftName: "GS"})
	aggs := newAggState()
	feed := newPunchState(
		manualIn(1, "E4", at(11, 9, 10)),
		manualOut(2, "E4", at(11, 18, 5)),
	)
	proc := newProcessor(snap, aggs, feed)

	if err := proc.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// the earlier IN only shows up on a later sync
	feed.punches = append(feed.punches, manualIn(3, "E4", at(11, 8, 50)))
	if err := proc.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	agg, ok := aggs.get("E4", day(11))
	if !ok {
		t.Fatal("aggregate missing")
	}
	if !agg.First.Equal(at(11, 8, 50)) {
		t.Fatalf("first = %s, want the late-arriving earlier IN", agg.First)
	}
	if !agg.Last.Equal(at(11, 18, 5)) {
		t.Fatalf("last = %s, want the preserved OUT", agg.Last)
	}
	if agg.LateEntry != nil {
		t.Fatalf("late_entry = %v, want nil after reconciliation", *agg.LateEntry)
	}
	if agg.Status != metrics.StatusPresent {
		t.Fatalf("status = %q, want P", agg.Status)
	}
}

func TestRunAutoShiftMismatchIsNoOp(t *testing.T) {
	snap := snapshot([]shiftwindow.Shift{generalShift(), nightShift()},
		rosterdom.Employee{ID: "E5"})
	aggs := newAggState()
	feed := newPunchState(manualIn(1, "E5", at(11, 3, 0)))

	if err := newProcessor(snap, aggs, feed).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(aggs.rows) != 0 {
		t.Fatalf("no aggregate should be created, got %d", len(aggs.rows))
	}
	if !feed.processed[1] {
		t.Fatal("unmatched auto-shift punch must still be marked processed")
	}
}

func TestRunAutoShiftFirstMatchWins(t *testing.T) {
	early := generalShift()
	early.Name = "A-EARLY"
	late := generalShift()
	late.Name = "B-LATE"

	snap := snapshot([]shiftwindow.Shift{late, early}, rosterdom.Employee{ID: "E7"})
	aggs := newAggState()
	feed := newPunchState(manualIn(1, "E7", at(11, 9, 5)))

	if err := newProcessor(snap, aggs, feed).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	agg, ok := aggs.get("E7", day(11))
	if !ok {
		t.Fatal("aggregate missing")
	}
	if agg.Shift != "A-EARLY" {
		t.Fatalf("shift = %q, want the name-ordered first match", agg.Shift)
	}
}

func TestRunIdempotence(t *testing.T) {
	snap := snapshot([]shiftwindow.Shift{generalShift()},
		rosterdom.Employee{ID: "E1", ShiftName: "GS"})
	aggs := newAggState()
	feed := newPunchState(
		manualIn(1, "E1", at(11, 8, 58)),
		manualOut(2, "E1", at(11, 18, 22)),
	)
	proc := newProcessor(snap, aggs, feed)

	if err := proc.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	want, _ := aggs.get("E1", day(11))

	if err := proc.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	got, _ := aggs.get("E1", day(11))

	if !got.First.Equal(want.First) || !got.Last.Equal(want.Last) || got.Status != want.Status {
		t.Fatalf("rerun changed the aggregate: %+v vs %+v", got, want)
	}
	if len(aggs.rows) != 1 {
		t.Fatalf("rerun created rows: %d", len(aggs.rows))
	}
}

func TestRunOutReplacementOrderInvariant(t *testing.T) {
	t1, t2, t3 := at(11, 9, 0), at(11, 17, 0), at(11, 18, 30)

	// each case stages a first sync, runs, then syncs the remaining OUT
	cases := []struct {
		name          string
		first, second []punchdom.Punch
	}{
		{
			name:   "later out arrives later",
			first:  []punchdom.Punch{manualIn(1, "E1", t1), manualOut(2, "E1", t2)},
			second: []punchdom.Punch{manualOut(3, "E1", t3)},
		},
		{
			name:   "earlier out arrives later",
			first:  []punchdom.Punch{manualIn(1, "E1", t1), manualOut(3, "E1", t3)},
			second: []punchdom.Punch{manualOut(2, "E1", t2)},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapshot([]shiftwindow.Shift{generalShift()},
				rosterdom.Employee{ID: "E1", ShiftName: "GS"})
			aggs := newAggState()
			feed := newPunchState(tc.first...)
			proc := newProcessor(snap, aggs, feed)

			if err := proc.Run(context.Background()); err != nil {
				t.Fatalf("first run: %v", err)
			}
			feed.punches = append(feed.punches, tc.second...)
			if err := proc.Run(context.Background()); err != nil {
				t.Fatalf("second run: %v", err)
			}

			agg, ok := aggs.get("E1", day(11))
			if !ok {
				t.Fatal("aggregate missing")
			}
			if !agg.Last.Equal(t3) {
				t.Fatalf("last = %s, want %s", agg.Last, t3)
			}
		})
	}
}

func TestRunInReplacementOrderInvariant(t *testing.T) {
	t1, t2, t3 := at(11, 9, 10), at(11, 10, 0), at(11, 18, 5)

	// each case stages a day with an OUT, runs, then syncs another IN;
	// whichever order the INs arrive in, the earliest one must hold first
	cases := []struct {
		name          string
		first, second []punchdom.Punch
		wantFirst     time.Time
	}{
		{
			name:      "earlier in arrives later",
			first:     []punchdom.Punch{manualIn(1, "E1", t2), manualOut(2, "E1", t3)},
			second:    []punchdom.Punch{manualIn(3, "E1", t1)},
			wantFirst: t1,
		},
		{
			name:      "later in arrives later",
			first:     []punchdom.Punch{manualIn(1, "E1", t1), manualOut(2, "E1", t3)},
			second:    []punchdom.Punch{manualIn(3, "E1", t2)},
			wantFirst: t1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapshot([]shiftwindow.Shift{generalShift()},
				rosterdom.Employee{ID: "E1", ShiftName: "GS"})
			aggs := newAggState()
			feed := newPunchState(tc.first...)
			proc := newProcessor(snap, aggs, feed)

			if err := proc.Run(context.Background()); err != nil {
				t.Fatalf("first run: %v", err)
			}
			feed.punches = append(feed.punches, tc.second...)
			if err := proc.Run(context.Background()); err != nil {
				t.Fatalf("second run: %v", err)
			}

			agg, ok := aggs.get("E1", day(11))
			if !ok {
				t.Fatal("aggregate missing")
			}
			if !agg.First.Equal(tc.wantFirst) {
				t.Fatalf("first = %s, want %s", agg.First, tc.wantFirst)
			}
			if !agg.Last.Equal(t3) {
				t.Fatalf("last = %s, want the preserved OUT", agg.Last)
			}
			if agg.Status == metrics.StatusMissingPunch {
				t.Fatal("pair intact, must not stay MP")
			}
		})
	}
}

func TestRunSkipsUnknownEmployee(t *testing.T) {
	snap := snapshot([]shiftwindow.Shift{generalShift()})
	aggs := newAggState()
	feed := newPunchState(manualIn(1, "GHOST", at(11, 9, 0)))

	if err := newProcessor(snap, aggs, feed).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(aggs.rows) != 0 {
		t.Fatal("no aggregate expected")
	}
	if feed.processed[1] {
		t.Fatal("unknown-employee punch must stay unprocessed")
	}
}

func TestRunSkipsOutsideEmploymentWindow(t *testing.T) {
	join := day(12)
	snap := snapshot([]shiftwindow.Shift{generalShift()},
		rosterdom.Employee{ID: "E9", ShiftName: "GS", JoinDate: &join})
	aggs := newAggState()
	feed := newPunchState(manualIn(1, "E9", at(11, 9, 0)))

	if err := newProcessor(snap, aggs, feed).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(aggs.rows) != 0 || feed.processed[1] {
		t.Fatal("pre-join punch must be skipped and left unprocessed")
	}
}

func TestRunBothDirectionDevice(t *testing.T) {
	snap := snapshot([]shiftwindow.Shift{generalShift()},
		rosterdom.Employee{ID: "E8", ShiftName: "GS"})
	aggs := newAggState()
	feed := newPunchState(
		punchdom.Punch{ID: 1, EmployeeID: "E8", Time: at(11, 9, 2), Shortname: "turnstile", Serialno: "D3", Source: punchdom.SourceDevice},
		punchdom.Punch{ID: 2, EmployeeID: "E8", Time: at(11, 17, 55), Shortname: "turnstile", Serialno: "D3", Source: punchdom.SourceDevice},
	)

	if err := newProcessor(snap, aggs, feed).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	agg, ok := aggs.get("E8", day(11))
	if !ok {
		t.Fatal("aggregate missing")
	}
	if !agg.First.Equal(at(11, 9, 2)) || !agg.Last.Equal(at(11, 17, 55)) {
		t.Fatalf("pair = %s / %s", agg.First, agg.Last)
	}
	if agg.Status == metrics.StatusMissingPunch {
		t.Fatal("both sides set must not stay MP")
	}
}

func TestRunUnconfiguredDeviceSkips(t *testing.T) {
	snap := snapshot([]shiftwindow.Shift{generalShift()},
		rosterdom.Employee{ID: "E1", ShiftName: "GS"})
	aggs := newAggState()
	feed := newPunchState(
		punchdom.Punch{ID: 1, EmployeeID: "E1", Time: at(11, 9, 0), Shortname: "rogue", Serialno: "DX", Source: punchdom.SourceDevice},
	)

	if err := newProcessor(snap, aggs, feed).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if feed.processed[1] {
		t.Fatal("punch from an unconfigured device must stay unprocessed")
	}
}
