package analysis

import (
	"sort"
	"strings"

	"github.com/and161185/biasmeter/model"
)

type format struct {
	columns     string
	description string
}

var formats = map[string]format{
	"hiring":     {"Gender,Experience,Position,Selected", "Analyzes gender bias in hiring decisions"},
	"finance":    {"Gender,Income,CreditScore,LoanApproved", "Detects bias in loan approvals and credit scoring"},
	"education":  {"Gender,TestScore,Extracurriculars,Admitted", "Identifies bias in admissions and grading"},
	"health":     {"Gender,Age,Symptoms,TreatmentGiven", "Analyzes bias in medical treatment recommendations"},
	"justice":    {"Ethnicity,Priors,BailAmount,Sentenced", "Detects bias in bail amounts and sentencing"},
	"ecommerce":  {"UserGender,BrowsingHistory,PriceShown,Purchased", "Identifies price discrimination and recommendation bias"},
	"social":     {"UserDemographic,ContentType,Visibility,Engagement", "Analyzes content visibility and engagement bias"},
	"industrial": {"WorkerGender,Experience,SafetyIncidents,Promoted", "Detects bias in promotions and safety evaluations"},
}

var fallback = format{"Gender,Feature1,Feature2,Selected", "Analyzes bias in decision-making systems"}

// Format returns the expected CSV columns for an industry.
// Unknown industries get a generic layout; the lookup ignores case.
func Format(industry string) model.IndustryFormat {
	f, ok := formats[strings.ToLower(industry)]
	if !ok {
		f = fallback
	}
	return model.IndustryFormat{Industry: industry, Format: f.columns, Description: f.description}
}

// Industries lists the industries with a dedicated format, sorted.
func Industries() []string {
	out := make([]string, 0, len(formats))
	for k := range formats {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
