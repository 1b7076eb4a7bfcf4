// Package export renders reports as XLSX workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"budgetsmart/internal/core"
)

const (
	SummarySheet    = "Summary"
	MonthlySheet    = "Monthly"
	CategoriesSheet = "Categories"

	// ContentType is the MIME type of the written workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	dateLayout = "2006-01-02"
)

// WriteReport writes report to w as a workbook with a summary sheet, the
// monthly series and the category breakdown. Amounts are in currency units.
func WriteReport(w io.Writer, report core.Report, currencyCode string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(MonthlySheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", MonthlySheet, err)
	}
	if _, err := f.NewSheet(CategoriesSheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", CategoriesSheet, err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	var total core.Money
	for _, c := range report.Categories {
		total = total.Add(c.Amount)
	}
	var orphaned core.Money
	for _, o := range report.Orphaned {
		orphaned = orphaned.Add(o.Amount)
	}

	summary := [][]any{
		{"Report", string(report.Type)},
		{"From", report.Window.Start.Format(dateLayout)},
		{"To", report.Window.End.Format(dateLayout)},
		{"Currency", currencyCode},
		{"Total", total.Units()},
		{"Uncategorized", orphaned.Units()},
	}
	if err := writeRows(f, SummarySheet, nil, summary, header); err != nil {
		return err
	}

	monthly := make([][]any, 0, len(report.Monthly))
	for _, m := range report.Monthly {
		monthly = append(monthly, []any{fmt.Sprintf("%s %d", m.MonthName(), m.Year), m.Amount.Units()})
	}
	if err := writeRows(f, MonthlySheet, []string{"Month", "Amount"}, monthly, header); err != nil {
		return err
	}

	categories := make([][]any, 0, len(report.Categories))
	for _, c := range report.Categories {
		categories = append(categories, []any{c.CategoryName, c.Amount.Units(), round2(c.Percentage)})
	}
	if err := writeRows(f, CategoriesSheet, []string{"Category", "Amount", "Share %"}, categories, header); err != nil {
		return err
	}

	for _, sheet := range []string{SummarySheet, MonthlySheet, CategoriesSheet} {
		if err := f.SetColWidth(sheet, "A", "A", 20); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	row := 1
	if len(headers) > 0 {
		for col, h := range headers {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, h); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
		last, err := excelize.CoordinatesToCellName(len(headers), row)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("style header of %s: %w", sheet, err)
		}
		row++
	}

	for _, values := range rows {
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
		row++
	}
	return nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
