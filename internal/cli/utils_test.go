package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kbase/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "go engineer",
		QueryTime: 42,
		Results: []*models.SearchResult{
			{
				DocumentID:    "doc-1",
				Filename:      "jane-doe.pdf",
				ChunkIndex:    2,
				Text:          "Senior   Go engineer\nbuilding distributed systems",
				Score:         0.8123,
				SemanticScore: 0.75,
				KeywordScore:  0.9,
			},
		},
		TotalResults: 1,
		Params:       models.SearchParams{Limit: 5},
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, s := range []string{"text", "compact", "json"} {
		if f, err := ParseOutputFormat(s); err != nil || string(f) != s {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", s, f, err)
		}
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.TotalResults != 1 || decoded.Results[0].Score != 0.8123 {
		t.Errorf("decoded = %+v", decoded)
	}
	if !strings.Contains(buf.String(), `"confidence"`) {
		t.Error("JSON should use the confidence field name")
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		`Found 1 results for "go engineer" in 42ms`,
		"1. jane-doe.pdf (chunk 2) | Confidence: 0.8123 (Semantic: 0.7500, Keyword: 0.9000)",
		"Senior Go engineer building distributed systems",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_EmptyShowsMessage(t *testing.T) {
	resp := &models.SearchResponse{Query: "nothing", Message: "No relevant documents found for your query"}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), resp.Message) {
		t.Errorf("expected message in output:\n%s", buf.String())
	}
}

func TestWriteSearchResults_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "0.8123\tjane-doe.pdf#2\t") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestWriteDocuments(t *testing.T) {
	docs := []*models.Document{
		{ID: "d1", OriginalFilename: "a.pdf", Status: models.StatusCompleted, ChunksCount: 3, FileSize: 2048, CreatedAt: time.Now()},
		{ID: "d2", OriginalFilename: "b.pdf", Status: models.StatusFailed, FileSize: 10, CreatedAt: time.Now()},
	}
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, docs, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "STATUS") || !strings.Contains(out, "2.0 KiB") || !strings.Contains(out, "failed") {
		t.Errorf("unexpected listing:\n%s", out)
	}

	buf.Reset()
	if err := WriteDocuments(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty JSON listing = %q", buf.String())
	}

	buf.Reset()
	_ = WriteDocuments(&buf, nil, OutputText)
	if !strings.Contains(buf.String(), "No documents.") {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteDocument(t *testing.T) {
	tests := []struct {
		doc  *models.Document
		want string
	}{
		{&models.Document{ID: "d1", OriginalFilename: "a.pdf", Status: models.StatusCompleted, ChunksCount: 4}, "Ingested a.pdf: d1 (4 chunks)"},
		{&models.Document{ID: "d2", OriginalFilename: "b.pdf", Status: models.StatusFailed, VectorizationError: "no text"}, "Stored b.pdf without indexing: d2 (no text)"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := WriteDocument(&buf, tt.doc, OutputText); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(buf.String()) != tt.want {
			t.Errorf("got %q, want %q", buf.String(), tt.want)
		}
	}
}

func TestWriteStatus(t *testing.T) {
	status := &models.SystemStatus{
		Documents: 3,
		Fragments: 12,
		ByStatus:  map[models.Status]int64{models.StatusCompleted: 2, models.StatusFailed: 1},
		VectorStore: &models.VectorStoreStatus{
			Collection: "kb",
			Error:      "vector store connection unavailable",
		},
		DiskUsageBytes: 4096,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"documents:          3", "completed:", "fragments:          12", "4.0 KiB", "unavailable:        vector store connection unavailable"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "completed:") > strings.Index(out, "failed:") {
		t.Error("statuses should be sorted")
	}
}
