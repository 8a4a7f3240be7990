// Package finance computes property-level financial metrics and validates
// underwriting assumptions.
package finance

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Inputs are the raw figures metrics are derived from. Zero values mean
// "unknown"; dependent metrics then stay zero instead of dividing by zero.
type Inputs struct {
	PurchasePrice     float64 `json:"purchase_price"`
	LoanAmount        float64 `json:"loan_amount"`
	SquareFeet        float64 `json:"square_feet"`
	GrossRevenue      float64 `json:"gross_revenue"`
	OperatingExpenses float64 `json:"operating_expenses"`
	AnnualDebtService float64 `json:"annual_debt_service"`
	NOI               float64 `json:"noi"`
}

// Metrics are the derived underwriting figures. Percentages are expressed
// as percent (8.5 means 8.5%), everything rounded to 2 decimal places.
type Metrics struct {
	NOI             float64 `json:"noi"`
	CapRate         float64 `json:"cap_rate"`
	PricePerSF      float64 `json:"price_per_sf"`
	NOIPerSF        float64 `json:"noi_per_sf"`
	LTV             float64 `json:"ltv"`
	Equity          float64 `json:"equity"`
	DSCR            float64 `json:"dscr"`
	ExpenseRatio    float64 `json:"expense_ratio"`
	OperatingMargin float64 `json:"operating_margin"`
}

// Compute derives metrics from inputs. NOI falls back to revenue minus
// expenses when not given directly.
func Compute(in Inputs) Metrics {
	noi := in.NOI
	if noi == 0 && (in.GrossRevenue != 0 || in.OperatingExpenses != 0) {
		noi = in.GrossRevenue - in.OperatingExpenses
	}

	m := Metrics{NOI: round2(noi)}
	if in.PurchasePrice > 0 {
		m.CapRate = round2(noi / in.PurchasePrice * 100)
		m.LTV = round2(in.LoanAmount / in.PurchasePrice * 100)
		m.Equity = round2(in.PurchasePrice - in.LoanAmount)
	}
	if in.SquareFeet > 0 {
		m.PricePerSF = round2(in.PurchasePrice / in.SquareFeet)
		m.NOIPerSF = round2(noi / in.SquareFeet)
	}
	if in.AnnualDebtService > 0 {
		m.DSCR = round2(noi / in.AnnualDebtService)
	}
	if in.GrossRevenue > 0 {
		m.ExpenseRatio = round2(in.OperatingExpenses / in.GrossRevenue * 100)
		m.OperatingMargin = round2(noi / in.GrossRevenue * 100)
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Assumptions are the growth and pricing assumptions an underwriting model
// was built on, as percentages.
type Assumptions struct {
	RentGrowth  float64 `json:"rent_growth"`
	VacancyRate float64 `json:"vacancy_rate"`
	CapRate     float64 `json:"cap_rate"`
}

// Validate checks assumptions against conservative underwriting bounds:
// rent growth 0-5%, vacancy 0-15%, cap rate 4-12%. Violations are warnings,
// not errors; callers record them alongside the result.
func Validate(a Assumptions) (bool, []string) {
	var warnings []string
	if a.RentGrowth < 0 || a.RentGrowth > 5 {
		warnings = append(warnings, fmt.Sprintf("rent growth %.2f%% outside 0-5%% range", a.RentGrowth))
	}
	if a.VacancyRate < 0 || a.VacancyRate > 15 {
		warnings = append(warnings, fmt.Sprintf("vacancy rate %.2f%% outside 0-15%% range", a.VacancyRate))
	}
	if a.CapRate != 0 && (a.CapRate < 4 || a.CapRate > 12) {
		warnings = append(warnings, fmt.Sprintf("cap rate %.2f%% outside 4-12%% range", a.CapRate))
	}
	return len(warnings) == 0, warnings
}

// fieldAliases maps extracted field names to Inputs slots. Extractors are
// inconsistent about naming; the first alias found wins.
var fieldAliases = map[string][]string{
	"purchase_price":      {"purchase_price", "price", "sale_price", "asking_price"},
	"loan_amount":         {"loan_amount", "mortgage_amount", "debt"},
	"square_feet":         {"square_feet", "total_sf", "rentable_sf", "building_sf"},
	"gross_revenue":       {"gross_revenue", "total_income", "total_revenue", "effective_gross_income"},
	"operating_expenses":  {"operating_expenses", "total_expenses"},
	"annual_debt_service": {"annual_debt_service", "debt_service"},
	"noi":                 {"noi", "net_operating_income"},
}

// InputsFromFields builds Inputs from a structured-extraction field map,
// parsing formatted amounts like "$750,000" or "95%".
func InputsFromFields(fields map[string]any) Inputs {
	pick := func(slot string) float64 {
		for _, alias := range fieldAliases[slot] {
			if v, ok := fields[alias]; ok {
				if f, ok := ParseAmount(v); ok {
					return f
				}
			}
		}
		return 0
	}
	return Inputs{
		PurchasePrice:     pick("purchase_price"),
		LoanAmount:        pick("loan_amount"),
		SquareFeet:        pick("square_feet"),
		GrossRevenue:      pick("gross_revenue"),
		OperatingExpenses: pick("operating_expenses"),
		AnnualDebtService: pick("annual_debt_service"),
		NOI:               pick("noi"),
	}
}

// ParseAmount converts a numeric value or a formatted amount string
// ("$750,000", "95%", "(1,200)") to a float64. Parenthesised amounts are
// negative, accounting style.
func ParseAmount(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		s := strings.TrimSpace(x)
		neg := false
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			neg = true
			s = s[1 : len(s)-1]
		}
		s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		if neg {
			f = -f
		}
		return f, true
	}
	return 0, false
}
