// Package history computes read-only summaries of tenant periods.
package history

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
)

// Summary aggregates the records of one period. Totals are plain sums; no currency handling.
type Summary struct {
	TenantID   string         `json:"tenant_id"`
	PeriodID   string         `json:"period_id"`
	PeriodName string         `json:"period_name"`
	Status     periods.Status `json:"status"`
	StartDate  time.Time      `json:"start_date"`
	EndDate    time.Time      `json:"end_date"`

	Income           decimal.Decimal  `json:"income"`
	Expenses         decimal.Decimal  `json:"expenses"`
	Net              decimal.Decimal  `json:"net"`
	IncomeBreakdown  IncomeBreakdown  `json:"income_breakdown"`
	ExpenseBreakdown ExpenseBreakdown `json:"expense_breakdown"`
	RevenueCollected decimal.Decimal  `json:"revenue_collected"`
	RevenuePending   decimal.Decimal  `json:"revenue_pending"`

	Counts     Counts          `json:"counts"`
	Attendance AttendanceStats `json:"attendance"`
}

// IncomeBreakdown splits income by source.
type IncomeBreakdown struct {
	Financial decimal.Decimal `json:"financial"`
	Sales     decimal.Decimal `json:"sales"`
}

// ExpenseBreakdown splits expenses by source.
type ExpenseBreakdown struct {
	General         decimal.Decimal `json:"general"`
	Bills           decimal.Decimal `json:"bills"`
	Payroll         decimal.Decimal `json:"payroll"`
	Tax             decimal.Decimal `json:"tax"`
	Purchases       decimal.Decimal `json:"purchases"`
	MonthlyExpenses decimal.Decimal `json:"monthly_expenses"`
}

// Counts tallies records per kind.
type Counts struct {
	Financial       int `json:"financial"`
	Purchases       int `json:"purchases"`
	MonthlyExpenses int `json:"monthly_expenses"`
	Sales           int `json:"sales"`
	LegalDocuments  int `json:"legal_documents"`
	Employees       int `json:"employees"`
	Attendance      int `json:"attendance"`
	Leaves          int `json:"leaves"`
	Customers       int `json:"customers"`
	Invoices        int `json:"invoices"`
	Feedback        int `json:"feedback"`
	CarriedForward  int `json:"carried_forward"`
}

// AttendanceStats tallies attendance outcomes.
type AttendanceStats struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	HalfDay int `json:"half_day"`
}

// Compute summarises recs as belonging to p. It has no side effects and its result depends
// only on its inputs.
func Compute(p periods.Period, recs []records.Record) Summary {
	s := Summary{
		TenantID:   p.TenantID,
		PeriodID:   p.ID,
		PeriodName: p.Name,
		Status:     p.Status,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
	}
	var (
		inc = &s.IncomeBreakdown
		exp = &s.ExpenseBreakdown
	)
	for _, rec := range recs {
		if rec.CarriedFrom != "" {
			s.Counts.CarriedForward++
		}
		switch v := rec.Payload.(type) {
		case records.Financial:
			s.Counts.Financial++
			switch v.Type {
			case records.FinancialIncome:
				inc.Financial = inc.Financial.Add(v.Amount)
			case records.FinancialExpense:
				exp.General = exp.General.Add(v.Amount)
			case records.FinancialBill:
				exp.Bills = exp.Bills.Add(v.Amount)
			case records.FinancialPayroll:
				exp.Payroll = exp.Payroll.Add(v.Amount)
			case records.FinancialTax:
				exp.Tax = exp.Tax.Add(v.Amount)
			}
		case records.Purchase:
			s.Counts.Purchases++
			exp.Purchases = exp.Purchases.Add(v.Amount)
		case records.MonthlyExpense:
			s.Counts.MonthlyExpenses++
			exp.MonthlyExpenses = exp.MonthlyExpenses.Add(v.Amount)
		case records.Sale:
			s.Counts.Sales++
			inc.Sales = inc.Sales.Add(v.Amount)
		case records.LegalDocument:
			s.Counts.LegalDocuments++
		case records.Employee:
			s.Counts.Employees++
		case records.Attendance:
			s.Counts.Attendance++
			switch v.Status {
			case records.AttendancePresent:
				s.Attendance.Present++
			case records.AttendanceAbsent:
				s.Attendance.Absent++
			case records.AttendanceLate:
				s.Attendance.Late++
			case records.AttendanceHalfDay:
				s.Attendance.HalfDay++
			}
		case records.Leave:
			s.Counts.Leaves++
		case records.Customer:
			s.Counts.Customers++
		case records.Invoice:
			s.Counts.Invoices++
			switch v.Status {
			case records.InvoicePaid:
				s.RevenueCollected = s.RevenueCollected.Add(v.Total)
			case records.InvoiceSent, records.InvoiceOverdue:
				s.RevenuePending = s.RevenuePending.Add(v.Total)
			}
		case records.Feedback:
			s.Counts.Feedback++
		}
	}
	s.Income = inc.Financial.Add(inc.Sales)
	s.Expenses = decimal.Sum(exp.General, exp.Bills, exp.Payroll, exp.Tax, exp.Purchases, exp.MonthlyExpenses)
	s.Net = s.Income.Sub(s.Expenses)
	return s
}
