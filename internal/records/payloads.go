package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FinancialType classifies financial records.
type FinancialType string

const (
	FinancialIncome        FinancialType = "income"
	FinancialExpense       FinancialType = "expense"
	FinancialInvoice       FinancialType = "invoice"
	FinancialBill          FinancialType = "bill"
	FinancialBankStatement FinancialType = "bank_statement"
	FinancialPayroll       FinancialType = "payroll"
	FinancialTax           FinancialType = "tax"
)

// PaymentStatus tracks settlement of financial records.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

// Financial is a general ledger-style entry: income, expenses, bills, payroll, taxes.
type Financial struct {
	Type        FinancialType   `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	Category    string          `json:"category,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Status      PaymentStatus   `json:"status"`
}

func (Financial) Kind() Kind { return KindFinancial }

func (f Financial) Validate() error {
	switch f.Type {
	case FinancialIncome, FinancialExpense, FinancialInvoice, FinancialBill, FinancialBankStatement, FinancialPayroll, FinancialTax:
	default:
		return invalid("financial type %q", f.Type)
	}
	switch f.Status {
	case "", PaymentPending, PaymentPaid, PaymentOverdue:
	default:
		return invalid("financial status %q", f.Status)
	}
	return nonNegative("amount", f.Amount)
}

// Purchase is a purchase obligation. Purchases are the only records that roll over.
type Purchase struct {
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Supplier    string          `json:"supplier,omitempty"`
	Date        time.Time       `json:"date"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
}

func (Purchase) Kind() Kind { return KindPurchase }

func (p Purchase) Validate() error {
	if p.Quantity < 0 {
		return invalid("quantity must not be negative")
	}
	return nonNegative("amount", p.Amount)
}

// MonthlyExpense is a recurring operating expense.
type MonthlyExpense struct {
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
}

func (MonthlyExpense) Kind() Kind { return KindMonthlyExpense }

func (m MonthlyExpense) Validate() error { return nonNegative("amount", m.Amount) }

// Sale is a sales entry counted as income.
type Sale struct {
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Date        time.Time       `json:"date"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
}

func (Sale) Kind() Kind { return KindSale }

func (s Sale) Validate() error {
	if s.Quantity < 0 {
		return invalid("quantity must not be negative")
	}
	return nonNegative("amount", s.Amount)
}

// LegalDocument tracks a compliance document.
type LegalDocument struct {
	Title        string     `json:"title"`
	DocumentType string     `json:"document_type"`
	Status       string     `json:"status,omitempty"`
	IssuedOn     *time.Time `json:"issued_on,omitempty"`
	ExpiresOn    *time.Time `json:"expires_on,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

func (LegalDocument) Kind() Kind { return KindLegalDocument }

func (d LegalDocument) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return invalid("legal document title required")
	}
	if d.IssuedOn != nil && d.ExpiresOn != nil && d.ExpiresOn.Before(*d.IssuedOn) {
		return invalid("legal document expires before issue date")
	}
	return nil
}

// EmployeeStatus enumerates employment states.
type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "active"
	EmployeeInactive   EmployeeStatus = "inactive"
	EmployeeTerminated EmployeeStatus = "terminated"
)

// Employee is a headcount entry.
type Employee struct {
	Name       string          `json:"name"`
	Position   string          `json:"position,omitempty"`
	Department string          `json:"department,omitempty"`
	Email      string          `json:"email,omitempty"`
	Phone      string          `json:"phone,omitempty"`
	HireDate   time.Time       `json:"hire_date"`
	Salary     decimal.Decimal `json:"salary"`
	Status     EmployeeStatus  `json:"status"`
}

func (Employee) Kind() Kind { return KindEmployee }

func (e Employee) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return invalid("employee name required")
	}
	switch e.Status {
	case "", EmployeeActive, EmployeeInactive, EmployeeTerminated:
	default:
		return invalid("employee status %q", e.Status)
	}
	return nonNegative("salary", e.Salary)
}

// AttendanceStatus enumerates attendance outcomes.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceHalfDay AttendanceStatus = "half_day"
)

// Attendance is one employee day.
type Attendance struct {
	EmployeeID string           `json:"employee_id"`
	Date       time.Time        `json:"date"`
	ClockIn    string           `json:"clock_in,omitempty"`
	ClockOut   string           `json:"clock_out,omitempty"`
	Status     AttendanceStatus `json:"status"`
	Notes      string           `json:"notes,omitempty"`
}

func (Attendance) Kind() Kind { return KindAttendance }

func (a Attendance) Validate() error {
	if a.EmployeeID == "" {
		return invalid("attendance employee required")
	}
	switch a.Status {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceHalfDay:
		return nil
	default:
		return invalid("attendance status %q", a.Status)
	}
}

// Leave is a leave request.
type Leave struct {
	EmployeeID string    `json:"employee_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	ApprovedBy string    `json:"approved_by,omitempty"`
}

func (Leave) Kind() Kind { return KindLeave }

func (l Leave) Validate() error {
	if l.EmployeeID == "" {
		return invalid("leave employee required")
	}
	if l.EndDate.Before(l.StartDate) {
		return invalid("leave ends before it starts")
	}
	return nil
}

// Customer is a customer master entry.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
}

func (Customer) Kind() Kind { return KindCustomer }

func (c Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("customer name required")
	}
	return nil
}

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Invoice is an issued customer invoice.
type Invoice struct {
	Number     string          `json:"number"`
	CustomerID string          `json:"customer_id,omitempty"`
	IssuedOn   time.Time       `json:"issued_on"`
	DueOn      time.Time       `json:"due_on"`
	Total      decimal.Decimal `json:"total"`
	Status     InvoiceStatus   `json:"status"`
}

func (Invoice) Kind() Kind { return KindInvoice }

func (i Invoice) Validate() error {
	if strings.TrimSpace(i.Number) == "" {
		return invalid("invoice number required")
	}
	switch i.Status {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled:
	default:
		return invalid("invoice status %q", i.Status)
	}
	return nonNegative("total", i.Total)
}

// Feedback is customer feedback.
type Feedback struct {
	CustomerID string `json:"customer_id,omitempty"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
}

func (Feedback) Kind() Kind { return KindFeedback }

func (f Feedback) Validate() error {
	if f.Rating < 1 || f.Rating > 5 {
		return invalid("feedback rating must be between 1 and 5")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidPayload}, args...)...)
}

func nonNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return invalid("%s must not be negative", field)
	}
	return nil
}
