package extract

import (
	"context"
	"regexp"
)

var leaseIndicators = []*regexp.Regexp{
	regexp.MustCompile(`lease\s*agreement`),
	regexp.MustCompile(`tenant\s*lease`),
	regexp.MustCompile(`rental\s*agreement`),
	regexp.MustCompile(`landlord\s*and\s*tenant`),
	regexp.MustCompile(`premises\s*lease`),
	regexp.MustCompile(`term\s*of\s*lease`),
}

var (
	leaseTenantRe   = regexp.MustCompile(`(?i)tenant[:\s]+"?([A-Za-z][A-Za-z0-9 .,&'-]{2,60})`)
	leaseBaseRentRe = regexp.MustCompile(`(?i)base\s*rent[^$0-9]*\$?([\d,]+(?:\.\d+)?)`)
	leaseTermRe     = regexp.MustCompile(`(?i)term[^0-9]{0,20}(\d+)\s*(years?|months?)`)
	leaseDepositRe  = regexp.MustCompile(`(?i)security\s*deposit[^$0-9]*\$?([\d,]+(?:\.\d+)?)`)
)

// Lease extracts tenant, rent, and term details from lease agreements.
type Lease struct{}

func (Lease) Name() string { return "lease" }

func (Lease) CanHandle(content, filename string) bool {
	if filenameHasAny(filename, "lease", "agreement", "contract") {
		return true
	}
	return contentMatchesAny(content, leaseIndicators...)
}

func (Lease) Extract(ctx context.Context, content string) (*Result, error) {
	fields := map[string]any{}
	conf := map[string]float64{}

	if tenant, ok := findText(content, leaseTenantRe); ok {
		fields["tenant_name"] = tenant
		conf["tenant_name"] = 0.7
	}
	if rent, ok := findAmount(content, leaseBaseRentRe); ok {
		fields["base_rent"] = rent
		conf["base_rent"] = 0.85
	}
	if m := leaseTermRe.FindStringSubmatch(content); len(m) > 2 {
		fields["lease_term"] = m[1] + " " + m[2]
		conf["lease_term"] = 0.8
	}
	if dep, ok := findAmount(content, leaseDepositRe); ok {
		fields["security_deposit"] = dep
		conf["security_deposit"] = 0.8
	}

	res := &Result{
		DocType:    "lease",
		Fields:     fields,
		Confidence: conf,
		Risk:       RiskUnknown,
	}
	res.Valid, res.Warnings = validateLease(fields)

	// A lease with no deposit on file reads riskier than one with.
	if _, hasRent := fields["base_rent"]; hasRent {
		if _, hasDep := fields["security_deposit"]; hasDep {
			res.Risk = RiskLow
		} else {
			res.Risk = RiskMedium
		}
	}
	return res, nil
}

func validateLease(fields map[string]any) (bool, []string) {
	var warnings []string
	if len(fields) == 0 {
		warnings = append(warnings, "no lease data extracted")
	}
	if rent, ok := fields["base_rent"].(float64); ok && rent <= 0 {
		warnings = append(warnings, "non-positive base rent")
	}
	return len(warnings) == 0, warnings
}
