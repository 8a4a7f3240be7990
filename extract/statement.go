package extract

import (
	"context"
	"regexp"
)

var plIndicators = []*regexp.Regexp{
	regexp.MustCompile(`profit\s*(?:and|&)\s*loss`),
	regexp.MustCompile(`income\s*statement`),
	regexp.MustCompile(`operating\s*statement`),
	regexp.MustCompile(`net\s*operating\s*income`),
}

var operatingIndicators = []*regexp.Regexp{
	regexp.MustCompile(`operating\s*statement`),
	regexp.MustCompile(`property\s*performance`),
	regexp.MustCompile(`actual\s*vs\.?\s*budget`),
	regexp.MustCompile(`variance\s*report`),
	regexp.MustCompile(`year\s*to\s*date`),
}

var (
	plRevenueRe  = regexp.MustCompile(`(?i)(?:total\s*(?:revenue|income)|gross\s*income|effective\s*gross\s*income)[^$0-9-]*\$?([\d,]+(?:\.\d+)?)`)
	plExpenseRe  = regexp.MustCompile(`(?i)total\s*(?:operating\s*)?expenses?[^$0-9-]*\$?([\d,]+(?:\.\d+)?)`)
	plNOIRe      = regexp.MustCompile(`(?i)(?:net\s*operating\s*income|NOI)[^$0-9-]*\$?([\d,]+(?:\.\d+)?)`)
	osBudgetRe   = regexp.MustCompile(`(?i)budget(?:ed)?\s*:?\s*\$?([\d,]+(?:\.\d+)?)`)
	osVarianceRe = regexp.MustCompile(`(?i)variance[^0-9-]*(-?[\d.]+)\s*%`)
)

// PLStatement extracts the revenue, expense, and NOI lines from profit and
// loss statements.
type PLStatement struct{}

func (PLStatement) Name() string { return "pl_statement" }

func (PLStatement) CanHandle(content, filename string) bool {
	if filenameHasAny(filename, "p&l", "profit", "loss", "income") {
		return true
	}
	return contentMatchesAny(content, plIndicators...)
}

func (PLStatement) Extract(ctx context.Context, content string) (*Result, error) {
	fields, conf := extractFinancials(content)
	res := &Result{
		DocType:    "pl_statement",
		Fields:     fields,
		Confidence: conf,
		Risk:       financialRisk(fields),
	}
	res.Valid, res.Warnings = validateFinancials(fields)
	return res, nil
}

// OperatingStatement extracts financials plus budget and variance figures
// from property operating statements. Registered ahead of PLStatement so
// variance reports land here.
type OperatingStatement struct{}

func (OperatingStatement) Name() string { return "operating_statement" }

func (OperatingStatement) CanHandle(content, filename string) bool {
	if filenameHasAny(filename, "operating", "performance", "actual") {
		return true
	}
	return contentMatchesAny(content, operatingIndicators...)
}

func (OperatingStatement) Extract(ctx context.Context, content string) (*Result, error) {
	fields, conf := extractFinancials(content)
	if budget, ok := findAmount(content, osBudgetRe); ok {
		fields["budget_total"] = budget
		conf["budget_total"] = 0.7
	}
	if variance, ok := findAmount(content, osVarianceRe); ok {
		fields["variance_pct"] = variance
		conf["variance_pct"] = 0.75
	}

	res := &Result{
		DocType:    "operating_statement",
		Fields:     fields,
		Confidence: conf,
		Risk:       financialRisk(fields),
	}
	res.Valid, res.Warnings = validateFinancials(fields)
	return res, nil
}

func extractFinancials(content string) (map[string]any, map[string]float64) {
	fields := map[string]any{}
	conf := map[string]float64{}
	if rev, ok := findAmount(content, plRevenueRe); ok {
		fields["gross_revenue"] = rev
		conf["gross_revenue"] = 0.85
	}
	if exp, ok := findAmount(content, plExpenseRe); ok {
		fields["operating_expenses"] = exp
		conf["operating_expenses"] = 0.85
	}
	if noi, ok := findAmount(content, plNOIRe); ok {
		fields["noi"] = noi
		conf["noi"] = 0.9
	}
	return fields, conf
}

func validateFinancials(fields map[string]any) (bool, []string) {
	var warnings []string
	if len(fields) == 0 {
		warnings = append(warnings, "no financial data extracted")
		return false, warnings
	}
	rev, hasRev := fields["gross_revenue"].(float64)
	exp, hasExp := fields["operating_expenses"].(float64)
	noi, hasNOI := fields["noi"].(float64)

	if hasRev && hasExp && rev > 0 && exp/rev > 1 {
		warnings = append(warnings, "expense ratio above 100%")
	}
	if hasRev && hasNOI && noi > rev {
		warnings = append(warnings, "NOI greater than gross income")
	}
	for key, v := range fields {
		if f, ok := v.(float64); ok && f < 0 {
			warnings = append(warnings, "negative amount for "+key)
		}
	}
	return len(warnings) == 0, warnings
}

func financialRisk(fields map[string]any) RiskLevel {
	rev, hasRev := fields["gross_revenue"].(float64)
	noi, hasNOI := fields["noi"].(float64)
	if !hasRev || !hasNOI || rev <= 0 {
		return RiskUnknown
	}
	margin := noi / rev * 100
	switch {
	case margin < 40:
		return RiskHigh
	case margin < 55:
		return RiskMedium
	default:
		return RiskLow
	}
}
