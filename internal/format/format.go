// Package format renders command output as JSON or aligned key/value text.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// Formatter abstracts output formatting.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter writes one JSON document per payload. Indent, when set, is
// used for each nesting level.
type JSONFormatter struct {
	Indent string
}

// Write writes JSON payload to a writer.
func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	if f.Indent != "" {
		enc.SetIndent("", f.Indent)
	}
	return enc.Encode(payload)
}

// Pair is one labelled value in a text listing.
type Pair struct {
	Key   string
	Value string
}

// Pairs is an ordered listing of labelled values.
type Pairs []Pair

// Add appends a pair and returns the listing.
func (p Pairs) Add(key string, value any) Pairs {
	return append(p, Pair{Key: key, Value: fmt.Sprint(value)})
}

// TextFormatter writes Pairs as aligned "key: value" lines. Any other
// payload is printed with its default format.
type TextFormatter struct{}

func (TextFormatter) Write(w io.Writer, payload any) error {
	pairs, ok := payload.(Pairs)
	if !ok {
		_, err := fmt.Fprintln(w, payload)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, p := range pairs {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", p.Key, p.Value); err != nil {
			return err
		}
	}
	return tw.Flush()
}
