package kb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShouldIngest(t *testing.T) {
	tests := []struct {
		name    string
		exclude []string
		relPath string
		want    bool
	}{
		{name: "plain file", relPath: "manual.pdf", want: true},
		{name: "nested file", relPath: "specs/etfe/sheet.pdf", want: true},
		{name: "dotfile", relPath: ".DS_Store", want: false},
		{name: "dot directory", relPath: ".git/config", want: false},
		{name: "nested dotfile", relPath: "specs/.hidden", want: false},
		{name: "basename pattern", exclude: []string{"*.tmp"}, relPath: "scratch.tmp", want: false},
		{name: "glob pattern", exclude: []string{"**/*.tmp"}, relPath: "a/b/scratch.tmp", want: false},
		{name: "directory pattern", exclude: []string{"drafts/**"}, relPath: "drafts/v1.pdf", want: false},
		{name: "non-matching pattern", exclude: []string{"*.tmp"}, relPath: "manual.pdf", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewScanFilter(tt.exclude)
			if got := f.ShouldIngest(tt.relPath); got != tt.want {
				t.Errorf("ShouldIngest(%q) = %v, want %v", tt.relPath, got, tt.want)
			}
		})
	}
}

func TestListDocuments(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("b.txt")
	mustWrite("a.txt")
	mustWrite("sub/c.pdf")
	mustWrite(".hidden")

	files, err := ListDocuments(dir, NewScanFilter(nil))
	if err != nil {
		t.Fatalf("ListDocuments() error: %v", err)
	}

	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d: %v", len(files), files)
	}
	// Sorted absolute paths.
	for i := 1; i < len(files); i++ {
		if files[i] < files[i-1] {
			t.Errorf("files not sorted: %v", files)
		}
	}
	if filepath.Base(files[0]) != "a.txt" {
		t.Errorf("expected a.txt first, got %s", files[0])
	}
}
