package core

import (
	"fmt"
	"time"
)

// Period is a calendar month. Month is zero-based (0 = January).
type Period struct {
	Month int
	Year  int
}

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

func NewPeriod(month, year int) (Period, error) {
	p := Period{Month: month, Year: year}
	return p, p.Validate()
}

// PeriodOf returns the period containing t, evaluated in loc.
func PeriodOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return Period{Month: int(t.Month()) - 1, Year: t.Year()}
}

func (p Period) Validate() error {
	if p.Month < 0 || p.Month > 11 {
		return ErrInvalidMonth
	}
	return nil
}

// Bounds returns the first and last instant of the month in loc, both inclusive.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(p.Year, time.Month(p.Month+1), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// Window returns the period as an inclusive TimeWindow.
func (p Period) Window(loc *time.Location) TimeWindow {
	start, end := p.Bounds(loc)
	return TimeWindow{Start: start, End: end}
}

// Shift moves the period by offset months, carrying into the year.
func (p Period) Shift(offset int) Period {
	total := p.Year*12 + p.Month + offset
	year := total / 12
	month := total % 12
	if month < 0 {
		month += 12
		year--
	}
	return Period{Month: month, Year: year}
}

// Key orders periods chronologically (year*100 + month).
func (p Period) Key() int {
	return p.Year*100 + p.Month
}

func (p Period) String() string {
	if p.Validate() != nil {
		return fmt.Sprintf("month %d %d", p.Month, p.Year)
	}
	return fmt.Sprintf("%s %d", monthNames[p.Month], p.Year)
}

// TimeWindow is an inclusive [Start, End] range.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return ErrZeroDate
	}
	if w.Start.After(w.End) {
		return ErrInvalidWindow
	}
	return nil
}

// Contains reports whether t lies within the window, boundaries included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

const (
	LastMonth    TimePeriod = "last_month"
	Last3Months  TimePeriod = "last_3_months"
	Last6Months  TimePeriod = "last_6_months"
	LastYear     TimePeriod = "last_year"
	CustomPeriod TimePeriod = "custom"
)

// TimePeriod selects a report window relative to now.
type TimePeriod string

func ParseTimePeriod(s string) (TimePeriod, error) {
	tp := TimePeriod(s)
	switch tp {
	case LastMonth, Last3Months, Last6Months, LastYear, CustomPeriod:
		return tp, nil
	default:
		return "", fmt.Errorf("unknown time period %q", s)
	}
}

// Window resolves the selector to [now - span, now]. CustomPeriod has no
// implicit window and returns ErrCustomWindowRequired.
func (tp TimePeriod) Window(now time.Time) (TimeWindow, error) {
	var start time.Time
	switch tp {
	case LastMonth:
		start = addMonthsClamped(now, -1)
	case Last3Months:
		start = addMonthsClamped(now, -3)
	case Last6Months:
		start = addMonthsClamped(now, -6)
	case LastYear:
		start = addMonthsClamped(now, -12)
	case CustomPeriod:
		return TimeWindow{}, ErrCustomWindowRequired
	default:
		return TimeWindow{}, fmt.Errorf("unknown time period %q", string(tp))
	}
	return TimeWindow{Start: start, End: now}, nil
}

// addMonthsClamped adds months keeping the time of day and clamping the day to
// the last day of the target month (Mar 31 - 1 month = Feb 29 in a leap year).
// time.AddDate would normalise into the following month instead.
func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, months, 0)
	lastDay := target.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

const (
	ReportExpenses ReportType = "expenses"
	ReportIncome   ReportType = "income"
	ReportAll      ReportType = "all"
)

// ReportType filters transactions by type for reports.
type ReportType string

func ParseReportType(s string) (ReportType, error) {
	rt := ReportType(s)
	switch rt {
	case ReportExpenses, ReportIncome, ReportAll:
		return rt, nil
	default:
		return "", fmt.Errorf("unknown report type %q", s)
	}
}

// Includes reports whether transactions of type t belong to the report.
func (rt ReportType) Includes(t TransactionType) bool {
	switch rt {
	case ReportExpenses:
		return t == Expense
	case ReportIncome:
		return t == Income
	case ReportAll:
		return t == Expense || t == Income
	default:
		return false
	}
}

const (
	FilterAll     TransactionFilter = "all"
	FilterIncome  TransactionFilter = "income"
	FilterExpense TransactionFilter = "expense"
)

// TransactionFilter narrows a transaction list by type.
type TransactionFilter string

func ParseTransactionFilter(s string) (TransactionFilter, error) {
	if s == "" {
		return FilterAll, nil
	}
	f := TransactionFilter(s)
	switch f {
	case FilterAll, FilterIncome, FilterExpense:
		return f, nil
	default:
		return "", fmt.Errorf("unknown transaction filter %q", s)
	}
}

func (f TransactionFilter) Includes(t TransactionType) bool {
	switch f {
	case FilterIncome:
		return t == Income
	case FilterExpense:
		return t == Expense
	default:
		return true
	}
}
