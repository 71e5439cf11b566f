package claim

import "time"

// =============================================================================
// PERIOD - Policy windows for disbursement eligibility
// =============================================================================

// Period is an inclusive date window.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

type PeriodType string

const (
	PeriodCalendarYear PeriodType = "calendar_year" // Jan 1 - Dec 31
	PeriodFiscalYear   PeriodType = "fiscal_year"   // Apr 1 - Mar 31 by default
	PeriodRolling      PeriodType = "rolling"       // 12 months ending at the date
)

// PeriodConfig defines how to find the window a date falls into.
type PeriodConfig struct {
	Type PeriodType

	// For fiscal year: which month starts the year (1-12). Zero means April.
	FiscalYearStartMonth time.Month
}

// AcademicYear is the university's April-to-March year.
var AcademicYear = PeriodConfig{Type: PeriodFiscalYear, FiscalYearStartMonth: time.April}

// PeriodFor returns the period that contains the given date.
func (pc PeriodConfig) PeriodFor(date time.Time) Period {
	date = dateOnly(date)
	switch pc.Type {
	case PeriodFiscalYear:
		return pc.fiscalYearPeriod(date)
	case PeriodRolling:
		return Period{Start: date.AddDate(-1, 0, 1), End: endOfDay(date)}
	default:
		start := time.Date(date.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: endOfDay(start.AddDate(1, 0, -1))}
	}
}

func (pc PeriodConfig) fiscalYearPeriod(date time.Time) Period {
	month := pc.FiscalYearStartMonth
	if month == 0 {
		month = time.April
	}
	start := time.Date(date.Year(), month, 1, 0, 0, 0, 0, time.UTC)

	// Before the fiscal start we are still in the previous year
	if date.Before(start) {
		start = start.AddDate(-1, 0, 0)
	}
	return Period{Start: start, End: endOfDay(start.AddDate(1, 0, -1))}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return dateOnly(t).Add(24*time.Hour - time.Nanosecond)
}
