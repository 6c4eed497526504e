// Package cli renders command output and talks to a running server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/search"
	"github.com/hyperjump/kbase/pkg/utils"
)

// OutputFormat selects how command output is written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per item.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const snippetLength = 240

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%.4f\t%s#%d\t%s\n", r.Score, r.Filename, r.ChunkIndex, search.Highlight(r.Text, 80))
		}
		return nil
	}

	fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", response.TotalResults, response.Query, response.QueryTime)
	if response.Message != "" && len(response.Results) == 0 {
		fmt.Fprintln(w, response.Message)
		return nil
	}
	for i, r := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%d. %s (chunk %d) | Confidence: %.4f (Semantic: %.4f, Keyword: %.4f)\n",
			i+1, r.Filename, r.ChunkIndex, r.Score, r.SemanticScore, r.KeywordScore)
		fmt.Fprintf(w, "Document: %s\n", r.DocumentID)
		fmt.Fprintf(w, "\n%s\n\n", search.Highlight(r.Text, snippetLength))
	}
	return nil
}

// WriteDocuments writes a document listing.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.Document{}
		}
		return writeJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCHUNKS\tSIZE\tCREATED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			d.ID, utils.Truncate(d.OriginalFilename, 40), d.Status, d.ChunksCount,
			utils.FormatBytes(d.FileSize), d.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// WriteDocument writes the outcome of one ingestion.
func WriteDocument(w io.Writer, doc *models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	switch doc.Status {
	case models.StatusCompleted:
		fmt.Fprintf(w, "Ingested %s: %s (%d chunks)\n", doc.OriginalFilename, doc.ID, doc.ChunksCount)
	case models.StatusFailed:
		fmt.Fprintf(w, "Stored %s without indexing: %s (%s)\n", doc.OriginalFilename, doc.ID, doc.VectorizationError)
	default:
		fmt.Fprintf(w, "%s: %s (%s)\n", doc.OriginalFilename, doc.ID, doc.Status)
	}
	return nil
}

// WriteStatus writes a status report.
func WriteStatus(w io.Writer, status *models.SystemStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "documents:          %d\n", status.Documents)
	statuses := make([]string, 0, len(status.ByStatus))
	for s := range status.ByStatus {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(w, "  %-17s %d\n", s+":", status.ByStatus[models.Status(s)])
	}
	fmt.Fprintf(w, "fragments:          %d\n", status.Fragments)
	fmt.Fprintf(w, "disk_usage:         %s\n", utils.FormatBytes(status.DiskUsageBytes))
	if vs := status.VectorStore; vs != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# vector store")
		fmt.Fprintf(w, "collection:         %s\n", vs.Collection)
		if vs.Ready {
			fmt.Fprintf(w, "points:             %d\n", vs.Points)
			fmt.Fprintf(w, "dimensions:         %d\n", vs.Dimensions)
			if vs.Status != "" {
				fmt.Fprintf(w, "status:             %s\n", vs.Status)
			}
		} else {
			fmt.Fprintf(w, "unavailable:        %s\n", vs.Error)
		}
	}
	return nil
}
