package valuations

import "strings"

// Inputs are the financial fields a valuation is computed from. They are
// immutable once the record exists.
type Inputs struct {
	AnnualRevenue    float64 `json:"annualRevenue"`
	MonthlyCosts     float64 `json:"monthlyCosts"`
	TaxRate          float64 `json:"taxRate"`
	GrowthProjection float64 `json:"growthProjection"`
	Sector           string  `json:"sector"`
	YearsInOperation int     `json:"yearsInOperation"`
	Differentiator   string  `json:"differentiator"`
}

// Validate checks every field and returns a per-field error map. An empty
// map means the inputs are acceptable.
func (in Inputs) Validate() map[string]string {
	problems := make(map[string]string)
	if in.AnnualRevenue <= 0 {
		problems["annualRevenue"] = "must be greater than zero"
	}
	if in.MonthlyCosts < 0 {
		problems["monthlyCosts"] = "must not be negative"
	}
	if in.TaxRate < 0 || in.TaxRate > 100 {
		problems["taxRate"] = "must be between 0 and 100"
	}
	if strings.TrimSpace(in.Sector) == "" {
		problems["sector"] = "is required"
	}
	if in.YearsInOperation < 0 {
		problems["yearsInOperation"] = "must not be negative"
	}
	if strings.TrimSpace(in.Differentiator) == "" {
		problems["differentiator"] = "is required"
	}
	return problems
}
