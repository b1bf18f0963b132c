package extract

import (
	"regexp"

	"github.com/sells-group/guias-cli/internal/model"
)

type marker struct {
	docType model.DocType
	re      *regexp.Regexp
}

// markers are checked in order. FGTS Digital comes first so a guide that
// also quotes another heading is still declined.
var markers = []marker{
	{model.DocTypeFGTS, regexp.MustCompile(`(?i)Guia\s+do\s+FGTS\s+Digital`)},
	{model.DocTypeDARF, regexp.MustCompile(`Documento\s+de\s+Arrecadação\s+de\s+Receitas\s+Federais`)},
	{model.DocTypeESocial, regexp.MustCompile(`Documento\s+de\s+Arrecadação\s+do\s+eSocial`)},
}

// Classify returns the document type announced by the text's heading.
func Classify(text string) model.DocType {
	text = normalizeText(text)
	for _, m := range markers {
		if m.re.MatchString(text) {
			return m.docType
		}
	}
	return model.DocTypeUnknown
}
