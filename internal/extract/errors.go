package extract

import (
	"fmt"

	"github.com/sells-group/guias-cli/internal/model"
)

// SkipError reports a document whose type is unknown or deliberately not
// parsed. It is not a processing failure.
type SkipError struct {
	DocType model.DocType
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("extract: unsupported document type %q", e.DocType)
}

// ExtractionError reports a required field missing from a document whose
// type was recognized.
type ExtractionError struct {
	DocType model.DocType
	Field   string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: %s document: field %q not found", e.DocType, e.Field)
}
