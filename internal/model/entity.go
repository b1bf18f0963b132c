package model

import "strings"

// LegalEntity is a company registered in the entity directory, keyed by CNPJ.
type LegalEntity struct {
	TaxID      string   `json:"tax_id" yaml:"tax_id"`
	LegalName  string   `json:"legal_name" yaml:"legal_name"`
	TradeName  string   `json:"trade_name,omitempty" yaml:"trade_name"`
	Folder     string   `json:"folder" yaml:"folder"`
	PriorNames []string `json:"prior_names,omitempty" yaml:"prior_names"` // oldest first
}

// Names returns the legal, trade and prior names, skipping empty values.
func (e LegalEntity) Names() []string {
	names := make([]string, 0, 2+len(e.PriorNames))
	for _, n := range append([]string{e.LegalName, e.TradeName}, e.PriorNames...) {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// NormalizeTaxID keeps only the digits of a CNPJ.
func NormalizeTaxID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
