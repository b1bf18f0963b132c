package extract

import (
	"regexp"
	"strings"
)

// rule is a named pattern. The value is the first match of group 1 (or the
// whole match when group is 0).
type rule struct {
	field string
	re    *regexp.Regexp
	group int
}

func (r rule) find(text string) (string, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(m[r.group])
	return v, v != ""
}

const taxIDPattern = `\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}`

var (
	ruleTaxID          = rule{"tax_id", regexp.MustCompile(taxIDPattern), 0}
	ruleEntityName     = rule{"entity_name", regexp.MustCompile(taxIDPattern + `\s*([^\n]*)`), 1}
	ruleDocumentNumber = rule{"document_number", regexp.MustCompile(`(\S+)\s*Pagar este documento até`), 1}
	ruleDueDeclared    = rule{"due_date_declared", regexp.MustCompile(`(\S+)\s*Observações`), 1}
	rulePayUntil       = rule{"pay_until", regexp.MustCompile(`Pagar até:\s*(\S+)`), 1}
	ruleAmount         = rule{"amount", regexp.MustCompile(`Valor:\s*(\d{1,3}(?:\.\d{3})+,\d{1,2}|\d+,\d{1,2})`), 1}

	// Normal layout: period and original due date share one line.
	rePeriodAndDue = regexp.MustCompile(`PA:\s*(\S+)\s+Vencimento:\s*(\S+)`)

	// eSocial layout fallback.
	ruleESocialPeriod = rule{"reference_period", regexp.MustCompile(`PA:\s*(\S+)`), 1}
	ruleESocialDue    = rule{"due_date_stated", regexp.MustCompile(`Data de Vencimento\s*\n\s*(\d{2}/\d{2}/\d{4})`), 1}
)
