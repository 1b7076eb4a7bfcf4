package core

// BudgetStatus is the budget-vs-spend view of one budget for its month.
type BudgetStatus struct {
	Budget     Budget
	Category   Category
	Spent      Money
	Remaining  Money   // Budget.Amount - Spent, negative when over budget
	Percentage float64 // Spent / Budget.Amount * 100, 0 for a zero budget
}

func (s BudgetStatus) IsOverBudget() bool {
	return s.Spent.Cents > s.Budget.Amount.Cents
}

// BudgetOverview holds every budget status of a period and their totals.
// Budgets whose category no longer exists are listed in Orphaned and are
// not part of Statuses or the totals.
type BudgetOverview struct {
	Period         Period
	Statuses       []BudgetStatus
	TotalBudget    Money
	TotalSpent     Money
	TotalRemaining Money
	Percentage     float64
	Orphaned       []Budget
}

// FinancialSummary is the single-period dashboard summary.
type FinancialSummary struct {
	Period               Period
	TotalIncome          Money
	TotalExpenses        Money
	Balance              Money
	MonthlyBudget        Money
	BudgetedExpenses     Money // expenses in categories that have a budget this period
	BudgetUsedPercentage float64
}

// CategoryExpenseData is the amount of one category within a report window.
type CategoryExpenseData struct {
	CategoryID    string
	CategoryName  string
	CategoryColor int
	Amount        Money
	Percentage    float64 // share of the emitted category total
}

// MonthlyExpenseData is the amount of one calendar month within a report window.
type MonthlyExpenseData struct {
	Year   int
	Month  int // 0-11
	Amount Money
}

var shortMonthNames = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

func (m MonthlyExpenseData) MonthName() string {
	if m.Month < 0 || m.Month > 11 {
		return ""
	}
	return shortMonthNames[m.Month]
}

// OrphanedAmount is money recorded against a category id that no longer resolves.
type OrphanedAmount struct {
	CategoryID string
	Amount     Money
}

// Report is the time-series and category breakdown for a window.
type Report struct {
	Type          ReportType
	Window        TimeWindow
	Monthly       []MonthlyExpenseData
	Categories    []CategoryExpenseData
	TopCategories []CategoryExpenseData
	Orphaned      []OrphanedAmount
}

// TransactionWithCategory joins a transaction with its resolved category.
type TransactionWithCategory struct {
	Transaction Transaction
	Category    Category
}
