// Package cli provides output formatting for the Mitsuke command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/hyperjump/mitsuke/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "text", "":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteTextSearchResults writes a text search response to w in the given format.
func WriteTextSearchResults(w io.Writer, response *models.TextSearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	}
	fmt.Fprintf(w, "\nFound %d results for %q\n\n", response.Total, response.Query)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
	return nil
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", result.Rank, result.Score)
	fmt.Fprintf(w, "File: %s\n", filepath.Base(result.Path))
	if name, ok := result.Metadata["name"].(string); ok && name != "" {
		fmt.Fprintf(w, "Name: %s\n", name)
	}
	if category := result.Metadata.Category(); category != "" {
		fmt.Fprintf(w, "Category: %s\n", category)
	}
	fmt.Fprintln(w)
}

// WriteJSON writes any value as indented JSON, for -output json modes.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
