package model

import "strings"

// BusinessContext is the company questionnaire and caller details fed to the content model
type BusinessContext struct {
	CompanyName       string `json:"company_name,omitempty"`
	UserRole          string `json:"user_role,omitempty"`
	Industry          string `json:"industry,omitempty"`
	ProductService    string `json:"product_service,omitempty"`
	TargetAudience    string `json:"target_audience,omitempty"`
	KeyDifferentiator string `json:"key_differentiator,omitempty"`
	CustomerBenefits  string `json:"customer_benefits,omitempty"`
}

// HasQuestionnaire reports whether the company questionnaire was filled in.
func (b *BusinessContext) HasQuestionnaire() bool {
	if b == nil {
		return false
	}
	return strings.TrimSpace(b.Industry+b.ProductService+b.TargetAudience+b.KeyDifferentiator+b.CustomerBenefits) != ""
}
