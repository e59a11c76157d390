package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format   string
	Writer   io.Writer
	UseColor bool
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	cfg := opts.Config
	return &OutputFormatter{
		Format: cfg.Format,
		Writer: w,
		// color.NoColor is set when stdout is not a terminal or NO_COLOR is present.
		UseColor: cfg.Color && !color.NoColor,
	}
}

// JSON reports whether results are written as JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// WriteJSON encodes v as one indented JSON document.
func (f *OutputFormatter) WriteJSON(v interface{}) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Field writes one labelled line of text output.
func (f *OutputFormatter) Field(label string, value string, attrs ...color.Attribute) {
	fmt.Fprintf(f.Writer, "%s %s\n", f.colorize(fmt.Sprintf("%-12s", label), color.Bold), f.colorize(value, attrs...))
}

func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.UseColor || len(attrs) == 0 {
		return text
	}
	return color.New(attrs...).Sprint(text)
}
