package extract

import (
	"context"
	"regexp"
)

var rentRollIndicators = []*regexp.Regexp{
	regexp.MustCompile(`rent\s*roll`),
	regexp.MustCompile(`tenant\s*schedule`),
	regexp.MustCompile(`lease\s*schedule`),
	regexp.MustCompile(`unit\s*number`),
	regexp.MustCompile(`tenant\s*name`),
	regexp.MustCompile(`monthly\s*rent`),
}

var (
	rrOccupancyRe = regexp.MustCompile(`(?i)occupancy[^0-9%]*([\d.]+)\s*%`)
	rrUnitsRe     = regexp.MustCompile(`(?i)(\d+)\s*(?:units|suites|spaces)`)
	rrTotalRentRe = regexp.MustCompile(`(?i)total\s*(?:monthly\s*)?rent[^$0-9]*\$?([\d,]+(?:\.\d+)?)`)
	rrVacantRe    = regexp.MustCompile(`(?i)(\d+)\s*vacant`)
)

// RentRoll extracts occupancy and rent figures from rent roll documents.
type RentRoll struct{}

func (RentRoll) Name() string { return "rent_roll" }

func (RentRoll) CanHandle(content, filename string) bool {
	if filenameHasAny(filename, "rent", "roll", "tenant") {
		return true
	}
	return contentMatchesAny(content, rentRollIndicators...)
}

func (RentRoll) Extract(ctx context.Context, content string) (*Result, error) {
	fields := map[string]any{}
	conf := map[string]float64{}

	if occ, ok := findAmount(content, rrOccupancyRe); ok {
		fields["occupancy_rate"] = occ
		conf["occupancy_rate"] = 0.9
	}
	if units, ok := findAmount(content, rrUnitsRe); ok {
		fields["total_units"] = units
		conf["total_units"] = 0.8
	}
	if rent, ok := findAmount(content, rrTotalRentRe); ok {
		fields["monthly_rent_total"] = rent
		conf["monthly_rent_total"] = 0.85
	}
	if vacant, ok := findAmount(content, rrVacantRe); ok {
		fields["vacant_units"] = vacant
		conf["vacant_units"] = 0.8
	}

	res := &Result{
		DocType:    "rent_roll",
		Fields:     fields,
		Confidence: conf,
		Risk:       RiskUnknown,
	}
	res.Valid, res.Warnings = validateRentRoll(fields)

	if occ, ok := fields["occupancy_rate"].(float64); ok {
		switch {
		case occ < 80:
			res.Risk = RiskHigh
		case occ < 90:
			res.Risk = RiskMedium
		default:
			res.Risk = RiskLow
		}
	}
	return res, nil
}

func validateRentRoll(fields map[string]any) (bool, []string) {
	var warnings []string
	if len(fields) == 0 {
		warnings = append(warnings, "no rent roll data extracted")
	}
	if occ, ok := fields["occupancy_rate"].(float64); ok && (occ < 0 || occ > 100) {
		warnings = append(warnings, "occupancy rate outside 0-100%")
	}
	if units, ok := fields["total_units"].(float64); ok && units <= 0 {
		warnings = append(warnings, "non-positive unit count")
	}
	return len(warnings) == 0, warnings
}
