package records

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// decimal.Decimal drops trailing zeros when it marshals, so "500.50" would come back as
// "500.5". Money fields are written with the scale they were entered with instead.

func fixedScale(d decimal.Decimal) string {
	places := -d.Exponent()
	if places < 0 {
		places = 0
	}
	return d.StringFixed(places)
}

func (f Financial) MarshalJSON() ([]byte, error) {
	type plain Financial
	return json.Marshal(struct {
		plain
		Amount string `json:"amount"`
	}{plain(f), fixedScale(f.Amount)})
}

func (p Purchase) MarshalJSON() ([]byte, error) {
	type plain Purchase
	return json.Marshal(struct {
		plain
		Amount string `json:"amount"`
	}{plain(p), fixedScale(p.Amount)})
}

func (m MonthlyExpense) MarshalJSON() ([]byte, error) {
	type plain MonthlyExpense
	return json.Marshal(struct {
		plain
		Amount string `json:"amount"`
	}{plain(m), fixedScale(m.Amount)})
}

func (s Sale) MarshalJSON() ([]byte, error) {
	type plain Sale
	return json.Marshal(struct {
		plain
		Amount string `json:"amount"`
	}{plain(s), fixedScale(s.Amount)})
}

func (e Employee) MarshalJSON() ([]byte, error) {
	type plain Employee
	return json.Marshal(struct {
		plain
		Salary string `json:"salary"`
	}{plain(e), fixedScale(e.Salary)})
}

func (i Invoice) MarshalJSON() ([]byte, error) {
	type plain Invoice
	return json.Marshal(struct {
		plain
		Total string `json:"total"`
	}{plain(i), fixedScale(i.Total)})
}
