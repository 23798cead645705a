package valuations

import "testing"

func TestInputsValidateAccepted(t *testing.T) {
	if problems := testInputs().Validate(); len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}

	// Negative growth is allowed; the sign is unconstrained.
	in := testInputs()
	in.GrowthProjection = -10
	if problems := in.Validate(); len(problems) != 0 {
		t.Fatalf("negative growth should be allowed: %v", problems)
	}
}

func TestInputsValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Inputs)
		field  string
	}{
		{"zero revenue", func(in *Inputs) { in.AnnualRevenue = 0 }, "annualRevenue"},
		{"negative revenue", func(in *Inputs) { in.AnnualRevenue = -1 }, "annualRevenue"},
		{"negative costs", func(in *Inputs) { in.MonthlyCosts = -1 }, "monthlyCosts"},
		{"tax rate above 100", func(in *Inputs) { in.TaxRate = 101 }, "taxRate"},
		{"negative tax rate", func(in *Inputs) { in.TaxRate = -1 }, "taxRate"},
		{"blank sector", func(in *Inputs) { in.Sector = "   " }, "sector"},
		{"negative years", func(in *Inputs) { in.YearsInOperation = -1 }, "yearsInOperation"},
		{"blank differentiator", func(in *Inputs) { in.Differentiator = "" }, "differentiator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testInputs()
			tt.mutate(&in)
			problems := in.Validate()
			if _, ok := problems[tt.field]; !ok {
				t.Fatalf("expected problem on %s, got %v", tt.field, problems)
			}
		})
	}
}

func TestInputsValidateCollectsAllProblems(t *testing.T) {
	in := Inputs{AnnualRevenue: -5, MonthlyCosts: -1, TaxRate: 200}
	problems := in.Validate()
	for _, field := range []string{"annualRevenue", "monthlyCosts", "taxRate", "sector", "differentiator"} {
		if _, ok := problems[field]; !ok {
			t.Errorf("missing problem for %s: %v", field, problems)
		}
	}
}
