package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/guias-cli/internal/extract"
	"github.com/sells-group/guias-cli/internal/model"
	"github.com/sells-group/guias-cli/internal/ocr"
)

// extractOutput is printed by the extract command.
type extractOutput struct {
	DocType string       `json:"doc_type"`
	Guide   *model.Guide `json:"guide,omitempty"`
	Error   string       `json:"error,omitempty"`
	Text    string       `json:"text,omitempty"`
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the metadata extracted from one guide without moving it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fromText, _ := cmd.Flags().GetBool("text")
		showText, _ := cmd.Flags().GetBool("show-text")

		var text string
		if fromText {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return eris.Wrap(err, "read text file")
			}
			text = string(data)
		} else {
			extractor, err := ocr.NewExtractor(cfg.OCR)
			if err != nil {
				return eris.Wrap(err, "init text extractor")
			}
			text, err = extractor.ExtractText(ctx, args[0])
			if err != nil {
				return err
			}
		}

		out := extractOutput{DocType: string(extract.Classify(text))}
		g, err := extract.Extract(text, args[0], time.Now())
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Guide = g
		}
		if showText {
			out.Text = text
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	extractCmd.Flags().Bool("text", false, "treat the argument as already extracted text")
	extractCmd.Flags().Bool("show-text", false, "include the extracted text in the output")
	rootCmd.AddCommand(extractCmd)
}
