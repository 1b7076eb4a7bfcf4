package aggregate

import (
	"context"
	"sort"
	"time"

	"budgetsmart/internal/core"
	"budgetsmart/internal/log"
)

// TopCategoriesLimit is the size of Report.TopCategories.
const TopCategoriesLimit = 4

// ReportQuery selects the transactions of a report. Window is required
// when Period is core.CustomPeriod and ignored otherwise.
type ReportQuery struct {
	Type   core.ReportType
	Period core.TimePeriod
	Window *core.TimeWindow
}

// Resolve returns the concrete window of the query relative to now.
func (q ReportQuery) Resolve(now time.Time) (core.TimeWindow, error) {
	if q.Period == core.CustomPeriod {
		if q.Window == nil {
			return core.TimeWindow{}, core.ErrCustomWindowRequired
		}
		if err := q.Window.Validate(); err != nil {
			return core.TimeWindow{}, err
		}
		return *q.Window, nil
	}
	return q.Period.Window(now)
}

// Report builds the monthly series and category breakdown of a window.
func (e *Engine) Report(ctx context.Context, userID string, q ReportQuery) (core.Report, error) {
	if err := checkUser(userID); err != nil {
		return core.Report{}, err
	}
	if _, err := core.ParseReportType(string(q.Type)); err != nil {
		return core.Report{}, err
	}
	window, err := q.Resolve(e.Now())
	if err != nil {
		return core.Report{}, err
	}

	snap, err := e.fetch(ctx, userID, fetchPlan{categories: true, allTxns: true})
	if err != nil {
		e.logFetchFailure(ctx, log.OpReport, userID, err)
		return core.Report{}, err
	}

	report := ComputeReport(q.Type, window, snap.categories, snap.transactions, e.loc)
	e.logOrphans(ctx, log.OpReport, userID, 0, len(report.Orphaned))
	e.logger.DebugContext(ctx, "Computed report",
		log.FieldUserID, userID,
		log.FieldReportType, string(q.Type),
		log.FieldTimePeriod, string(q.Period),
		log.FieldCount, len(report.Categories))
	return report, nil
}

// ComputeReport filters transactions by window and type, then buckets them
// by month and by category.
func ComputeReport(rt core.ReportType, window core.TimeWindow, categories []core.Category, transactions []core.Transaction, loc *time.Location) core.Report {
	filtered := FilterTransactions(transactions, window, rt)

	report := core.Report{
		Type:    rt,
		Window:  window,
		Monthly: BucketByMonth(filtered, loc),
	}
	report.Categories, report.Orphaned = BucketByCategory(filtered, categories)

	top := len(report.Categories)
	if top > TopCategoriesLimit {
		top = TopCategoriesLimit
	}
	report.TopCategories = report.Categories[:top:top]
	return report
}

// FilterTransactions keeps transactions dated inside window (inclusive) whose
// type belongs to the report type. Input order is preserved.
func FilterTransactions(transactions []core.Transaction, window core.TimeWindow, rt core.ReportType) []core.Transaction {
	var out []core.Transaction
	for _, t := range transactions {
		if !window.Contains(t.Date) || !rt.Includes(t.Type) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// BucketByMonth sums transactions per calendar month, ascending.
func BucketByMonth(transactions []core.Transaction, loc *time.Location) []core.MonthlyExpenseData {
	sums := make(map[core.Period]core.Money)
	var order []core.Period
	for _, t := range transactions {
		p := core.PeriodOf(t.Date, loc)
		if _, seen := sums[p]; !seen {
			order = append(order, p)
		}
		sums[p] = sums[p].Add(t.Amount)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Key() < order[j].Key()
	})

	out := make([]core.MonthlyExpenseData, 0, len(order))
	for _, p := range order {
		out = append(out, core.MonthlyExpenseData{Year: p.Year, Month: p.Month, Amount: sums[p]})
	}
	return out
}

// BucketByCategory sums transactions per category. Buckets whose category is
// unknown are returned separately as orphans and never merged into another
// bucket. Resolved buckets are sorted by amount descending; ties keep the
// order in which the category first appeared in transactions.
func BucketByCategory(transactions []core.Transaction, categories []core.Category) ([]core.CategoryExpenseData, []core.OrphanedAmount) {
	byID := indexCategories(categories)

	sums := make(map[string]core.Money)
	var order []string
	for _, t := range transactions {
		if _, seen := sums[t.CategoryID]; !seen {
			order = append(order, t.CategoryID)
		}
		sums[t.CategoryID] = sums[t.CategoryID].Add(t.Amount)
	}

	var (
		buckets []core.CategoryExpenseData
		orphans []core.OrphanedAmount
		total   core.Money
	)
	for _, id := range order {
		category, ok := byID[id]
		if !ok {
			orphans = append(orphans, core.OrphanedAmount{CategoryID: id, Amount: sums[id]})
			continue
		}
		buckets = append(buckets, core.CategoryExpenseData{
			CategoryID:    id,
			CategoryName:  category.Name,
			CategoryColor: category.Color,
			Amount:        sums[id],
		})
		total = total.Add(sums[id])
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Amount.Cents > buckets[j].Amount.Cents
	})
	for i := range buckets {
		buckets[i].Percentage = core.Percentage(buckets[i].Amount, total)
	}
	return buckets, orphans
}
