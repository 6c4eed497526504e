package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kbase/internal/models"
)

type recordingIngester struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingIngester) IngestFile(_ context.Context, path string, _ *string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return &models.Document{ID: "doc", Status: models.StatusCompleted}, nil
}

func (r *recordingIngester) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestInbox_IngestsNewFilesOnce(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingIngester{}
	b := New(dir, []string{".pdf"}, rec, WithDebounce(50*time.Millisecond))
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	target := filepath.Join(dir, "resume.pdf")
	f, err := os.Create(target)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.WriteString("chunk of bytes "); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(rec.seen()) > 0 })
	time.Sleep(150 * time.Millisecond)
	got := rec.seen()
	if len(got) != 1 || got[0] != target {
		t.Errorf("ingested %v, want only %s", got, target)
	}
}

func TestInbox_WatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingIngester{}
	b := New(dir, []string{"pdf"}, rec, WithDebounce(30*time.Millisecond))
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	sub := filepath.Join(dir, "batch")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	target := filepath.Join(sub, "a.pdf")
	if err := os.WriteFile(target, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		for _, p := range rec.seen() {
			if p == target {
				return true
			}
		}
		return false
	})
}

func TestInbox_StartCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drop", "here")
	b := New(dir, nil, &recordingIngester{})
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	b.Stop()
	b.Stop()
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("inbox directory not created: %v", err)
	}
}

func TestInbox_StopDropsPending(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingIngester{}
	b := New(dir, nil, rec, WithDebounce(time.Hour))
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	b.schedule(filepath.Join(dir, "late.pdf"))
	b.Stop()
	if len(b.pending) != 0 {
		t.Errorf("pending timers left after stop: %d", len(b.pending))
	}
	if got := rec.seen(); len(got) != 0 {
		t.Errorf("ingested after stop: %v", got)
	}
}

func TestInbox_Accepts(t *testing.T) {
	b := New("/in", []string{".PDF", "docx"}, nil)
	tests := []struct {
		path string
		want bool
	}{
		{"/in/a.pdf", true},
		{"/in/b.DOCX", true},
		{"/in/c.txt", false},
		{"/in/.hidden.pdf", false},
		{"/in/noext", false},
	}
	for _, tt := range tests {
		if got := b.Accepts(tt.path); got != tt.want {
			t.Errorf("Accepts(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if !New("/in", nil, nil).Accepts("/in/anything.bin") {
		t.Error("empty extension list should accept every visible file")
	}
}

func TestInbox_SyncExisting(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.txt", ".c.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	rec := &recordingIngester{}
	b := New(dir, []string{".pdf"}, rec)
	if err := b.SyncExisting(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := rec.seen()
	if len(got) != 1 || filepath.Base(got[0]) != "a.pdf" {
		t.Errorf("synced %v, want only a.pdf", got)
	}
}
