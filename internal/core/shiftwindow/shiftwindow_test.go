package shiftwindow

import (
	"testing"
	"time"

	ptime "punchclock/internal/platform/time"
)

var kolkata = mustLoad("Asia/Kolkata")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, kolkata)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, kolkata)
}

func dayShift() Shift {
	return Shift{
		Name:                 "GS",
		Start:                ptime.Clock(9, 0),
		End:                  ptime.Clock(18, 0),
		ToleranceBeforeStart: 30 * time.Minute,
		ToleranceAfterStart:  30 * time.Minute,
		GraceAtStart:         15 * time.Minute,
		GraceAtEnd:           15 * time.Minute,
	}
}

func nightShift() Shift {
	return Shift{
		Name:                 "NS",
		Start:                ptime.Clock(22, 0),
		End:                  ptime.Clock(6, 0),
		ToleranceBeforeStart: 30 * time.Minute,
		ToleranceAfterStart:  30 * time.Minute,
	}
}

func TestCalcDayShiftBounds(t *testing.T) {
	w := Calc(dayShift(), at(2024, 3, 11, 8, 58), date(2024, 3, 11), kolkata)

	if !w.Start.Equal(at(2024, 3, 11, 9, 0)) {
		t.Fatalf("start = %s", w.Start)
	}
	if !w.End.Equal(at(2024, 3, 11, 18, 0)) {
		t.Fatalf("end = %s", w.End)
	}
	if !w.StartWindow.Equal(at(2024, 3, 11, 8, 30)) {
		t.Fatalf("start_window = %s", w.StartWindow)
	}
	if !w.EndWindow.Equal(at(2024, 3, 11, 9, 30)) {
		t.Fatalf("end_window = %s", w.EndWindow)
	}
	if !w.StartWithGrace.Equal(at(2024, 3, 11, 9, 15)) {
		t.Fatalf("start_with_grace = %s", w.StartWithGrace)
	}
	if !w.EndWithGrace.Equal(at(2024, 3, 11, 17, 45)) {
		t.Fatalf("end_with_grace = %s", w.EndWithGrace)
	}
}

func TestCalcNightShiftPreviousDay(t *testing.T) {
	// 01:15 punch on the 12th belongs to the instance that started 22:00 on the 11th
	w := Calc(nightShift(), at(2024, 3, 12, 1, 15), date(2024, 3, 12), kolkata)

	if !w.Start.Equal(at(2024, 3, 11, 22, 0)) {
		t.Fatalf("start = %s, want 2024-03-11 22:00", w.Start)
	}
	if !w.End.Equal(at(2024, 3, 12, 6, 0)) {
		t.Fatalf("end = %s, want 2024-03-12 06:00", w.End)
	}
	if !w.Date(kolkata).Equal(date(2024, 3, 11)) {
		t.Fatalf("date = %s, want 2024-03-11", w.Date(kolkata))
	}
}

func TestCalcNightShiftHeuristicGuards(t *testing.T) {
	cases := []struct {
		name  string
		shift Shift
		punch time.Time
		start time.Time
	}{
		{
			// punch after the previous instance already ended stays on base date
			name:  "after previous end",
			shift: nightShift(),
			punch: at(2024, 3, 12, 7, 30),
			start: at(2024, 3, 12, 22, 0),
		},
		{
			// evening punch is a normal same-day IN
			name:  "evening punch",
			shift: nightShift(),
			punch: at(2024, 3, 12, 21, 40),
			start: at(2024, 3, 12, 22, 0),
		},
		{
			// night shift starting before 18:00 never claims the previous day
			name: "early night start",
			shift: Shift{
				Name:  "NS2",
				Start: ptime.Clock(17, 0),
				End:   ptime.Clock(1, 0),
			},
			punch: at(2024, 3, 12, 0, 30),
			start: at(2024, 3, 12, 17, 0),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := Calc(tc.shift, tc.punch, ptime.DateOf(tc.punch, kolkata), kolkata)
			if !w.Start.Equal(tc.start) {
				t.Fatalf("start = %s, want %s", w.Start, tc.start)
			}
		})
	}
}

func TestCalcMidnightShift(t *testing.T) {
	ms := Shift{Name: "MID", Start: 0, End: ptime.Clock(8, 0)}

	// a 23:30 punch belongs to tomorrow's instance
	w := Calc(ms, at(2024, 3, 11, 23, 30), date(2024, 3, 11), kolkata)
	if !w.Start.Equal(at(2024, 3, 12, 0, 0)) {
		t.Fatalf("start = %s, want 2024-03-12 00:00", w.Start)
	}

	// no tolerance configured -> fixed one hour start window
	if got := w.Start.Sub(w.StartWindow); got != time.Hour {
		t.Fatalf("start window span = %s, want 1h", got)
	}
	if !w.Contains(at(2024, 3, 11, 23, 30)) {
		t.Fatal("23:30 punch should fall inside the widened window")
	}
}

func TestWindowContainsBoundsInclusive(t *testing.T) {
	w := Calc(dayShift(), at(2024, 3, 11, 9, 0), date(2024, 3, 11), kolkata)

	cases := []struct {
		punch time.Time
		want  bool
	}{
		{at(2024, 3, 11, 8, 30), true},  // exactly start_window
		{at(2024, 3, 11, 9, 30), true},  // exactly end_window
		{at(2024, 3, 11, 8, 29), false}, // one minute early
		{at(2024, 3, 11, 9, 31), false}, // one minute late
	}
	for _, tc := range cases {
		if got := w.Contains(tc.punch); got != tc.want {
			t.Errorf("Contains(%s) = %v, want %v", tc.punch.Format("15:04"), got, tc.want)
		}
	}
}

func TestCalcThresholdDefaults(t *testing.T) {
	w := Calc(Shift{Name: "BARE", Start: ptime.Clock(9, 0), End: ptime.Clock(18, 0)},
		at(2024, 3, 11, 9, 0), date(2024, 3, 11), kolkata)

	if w.HalfDayThreshold != MaxThreshold {
		t.Fatalf("half_day default = %v, want max", w.HalfDayThreshold)
	}
	if w.AbsentThreshold != 0 || w.FullDayThreshold != 0 {
		t.Fatalf("absent/full defaults = %v/%v, want 0/0", w.AbsentThreshold, w.FullDayThreshold)
	}

	half := 4 * time.Hour
	w = Calc(Shift{Name: "HD", Start: ptime.Clock(9, 0), End: ptime.Clock(18, 0), HalfDayThreshold: &half},
		at(2024, 3, 11, 9, 0), date(2024, 3, 11), kolkata)
	if w.HalfDayThreshold != half {
		t.Fatalf("half_day = %v, want %v", w.HalfDayThreshold, half)
	}
}

func TestCalcDeterminism(t *testing.T) {
	s := nightShift()
	punch := at(2024, 3, 12, 1, 15)
	base := date(2024, 3, 12)

	first := Calc(s, punch, base, kolkata)
	for i := 0; i < 3; i++ {
		if got := Calc(s, punch, base, kolkata); got != first {
			t.Fatalf("run %d produced a different window", i)
		}
	}
}
