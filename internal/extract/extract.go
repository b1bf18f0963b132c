// Package extract classifies payment documents and extracts guide metadata
// from the text of their first page.
package extract

import (
	"time"

	"github.com/sells-group/guias-cli/internal/model"
)

// layoutMatch is the outcome of the layout branch: which layout supplied the
// reference period and the stated due date.
type layoutMatch struct {
	layout model.Layout
	period string
	due    string
}

// matchLayout tries the single-line normal layout first and falls back to
// the eSocial blocks only when the combined pattern is absent.
func matchLayout(text string, docType model.DocType) (layoutMatch, error) {
	if m := rePeriodAndDue.FindStringSubmatch(text); m != nil {
		return layoutMatch{layout: model.LayoutNormal, period: m[1], due: m[2]}, nil
	}

	period, ok := ruleESocialPeriod.find(text)
	if !ok {
		return layoutMatch{}, &ExtractionError{DocType: docType, Field: ruleESocialPeriod.field}
	}
	due, ok := ruleESocialDue.find(text)
	if !ok {
		return layoutMatch{}, &ExtractionError{DocType: docType, Field: ruleESocialDue.field}
	}
	return layoutMatch{layout: model.LayoutESocial, period: period, due: due}, nil
}

// Extract classifies text and, for supported types, builds the guide
// metadata. Unknown and FGTS Digital documents return *SkipError without
// evaluating any field rule. A missing required field returns
// *ExtractionError.
func Extract(text, sourcePath string, now time.Time) (*model.Guide, error) {
	text = normalizeText(text)

	docType := Classify(text)
	if !docType.Supported() {
		return nil, &SkipError{DocType: docType}
	}

	required := func(r rule) (string, error) {
		v, ok := r.find(text)
		if !ok {
			return "", &ExtractionError{DocType: docType, Field: r.field}
		}
		return v, nil
	}

	taxID, err := required(ruleTaxID)
	if err != nil {
		return nil, err
	}
	name, _ := ruleEntityName.find(text)

	docNumber, err := required(ruleDocumentNumber)
	if err != nil {
		return nil, err
	}

	lm, err := matchLayout(text, docType)
	if err != nil {
		return nil, err
	}

	declared, err := required(ruleDueDeclared)
	if err != nil {
		return nil, err
	}
	payUntil, err := required(rulePayUntil)
	if err != nil {
		return nil, err
	}

	rawAmount, err := required(ruleAmount)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return nil, &ExtractionError{DocType: docType, Field: ruleAmount.field}
	}

	return &model.Guide{
		DocType:         docType,
		Layout:          lm.layout,
		TaxID:           model.NormalizeTaxID(taxID),
		EntityName:      name,
		ReferencePeriod: lm.period,
		DueDateDeclared: declared,
		PayUntil:        payUntil,
		DueDateStated:   lm.due,
		Amount:          amount,
		DocumentNumber:  docNumber,
		Recalculated:    isRecalculated(declared, payUntil, lm.due),
		SourcePath:      sourcePath,
		ProcessedAt:     now.UTC().Truncate(time.Second),
	}, nil
}

// isRecalculated compares the due dates textually. A guide whose two
// declared dates disagree, or agree but differ from the stated original
// due date, was reissued with a new due date.
func isRecalculated(declared, payUntil, stated string) bool {
	if declared != payUntil {
		return true
	}
	return declared != stated
}
