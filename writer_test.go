package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writerConfig(dir string) *Config {
	cfg := DefaultConfig()
	cfg.OutputDir = dir
	return cfg
}

func renderedArticle() *MappedArticle {
	pub := time.Date(2023, 1, 15, 9, 0, 0, 0, time.UTC)
	return &MappedArticle{
		ID:          "42",
		Title:       "Vitamin D: ein Wintergast",
		Author:      "maria-schmidt",
		Description: "Warum Vitamin D im Winter wichtig ist.",
		PubDatetime: pub,
		ModDatetime: pub,
		Keywords:    []string{"vitamin", "winter"},
		Categories:  []string{"Ernährung"},
		Group:       GroupPro,
		Tags:        []string{"Vitamine"},
		HeroImage:   &HeroImage{Src: "./images/hero-bild.jpg", Alt: "Sonne"},
		Slug:        "vitamin-d-im-winter",
		Path:        "2023-01-15-vitamin-d-im-winter",
		Body:        "Der Artikeltext.\n\n<Image src={heroBild} alt=\"Sonne\" />",
		Images:      []string{"hero-bild.jpg"},
	}
}

func TestRenderFrontmatterOrder(t *testing.T) {
	w := NewOutputWriter(writerConfig(t.TempDir()))
	content := w.Render(renderedArticle())

	keys := []string{
		"id:", "title:", "author:", "pubDatetime:", "modDatetime:",
		"description:", "keywords:", "categories:", "group:", "tags:",
		"heroImage:", "draft:", "featured:",
	}
	last := -1
	for _, key := range keys {
		idx := strings.Index(content, "\n"+key)
		if key == "id:" {
			idx = strings.Index(content, "---\n"+key)
		}
		if idx == -1 {
			t.Fatalf("Render() missing frontmatter key %q:\n%s", key, content)
		}
		if idx < last {
			t.Errorf("key %q out of order", key)
		}
		last = idx
	}
}

func TestRenderEscapesYAMLValues(t *testing.T) {
	w := NewOutputWriter(writerConfig(t.TempDir()))
	a := renderedArticle()
	a.Title = `Vitamin D: "das" Sonnenhormon`

	content := w.Render(a)
	if !strings.Contains(content, `title: "Vitamin D: \"das\" Sonnenhormon"`) {
		t.Errorf("Render() did not quote the title:\n%s", content)
	}
}

func TestRenderImageImports(t *testing.T) {
	w := NewOutputWriter(writerConfig(t.TempDir()))
	content := w.Render(renderedArticle())

	if !strings.Contains(content, `import heroBild from "./images/hero-bild.jpg";`) {
		t.Errorf("Render() missing image import:\n%s", content)
	}

	importIdx := strings.Index(content, "import heroBild")
	closeIdx := strings.LastIndex(content, "---\n")
	if importIdx < closeIdx {
		t.Error("import appears inside the frontmatter")
	}
}

func TestWriteCreatesBundle(t *testing.T) {
	dir := t.TempDir()
	w := NewOutputWriter(writerConfig(dir))
	a := renderedArticle()

	if _, err := w.Prepare(a.Path); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := w.Write(a); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	indexPath := filepath.Join(dir, a.Path, "index.mdx")
	data, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("reading index.mdx: %v", err)
	}
	if !strings.HasPrefix(string(data), "---\n") {
		t.Error("index.mdx does not start with frontmatter")
	}
}

func TestPrepareBacksUpExistingBundle(t *testing.T) {
	dir := t.TempDir()
	w := NewOutputWriter(writerConfig(dir))
	a := renderedArticle()

	if _, err := w.Prepare(a.Path); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(a); err != nil {
		t.Fatal(err)
	}

	// Second run must move the completed bundle aside.
	if _, err := w.Prepare(a.Path); err != nil {
		t.Fatalf("second Prepare() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	backups := 0
	for _, e := range entries {
		if strings.Contains(e.Name(), ".bak.") {
			backups++
		}
	}
	if backups != 1 {
		t.Errorf("found %d backup directories, want 1", backups)
	}

	// The fresh article directory must exist and be empty again.
	fresh, err := os.ReadDir(filepath.Join(dir, a.Path))
	if err != nil {
		t.Fatalf("article directory missing after Prepare(): %v", err)
	}
	if len(fresh) != 0 {
		t.Errorf("article directory not empty: %d entries", len(fresh))
	}
}

func TestPrepareForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	cfg := writerConfig(dir)
	cfg.Force = true
	w := NewOutputWriter(cfg)
	a := renderedArticle()

	w.Prepare(a.Path)
	w.Write(a)
	w.Prepare(a.Path)

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".bak.") {
			t.Errorf("force mode created backup %s", e.Name())
		}
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	cfg := writerConfig(dir)
	cfg.DryRun = true
	w := NewOutputWriter(cfg)
	a := renderedArticle()

	if _, err := w.Prepare(a.Path); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := w.Write(a); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("dry run created %d entries", len(entries))
	}
}

func TestYamlScalar(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"einfach", "einfach"},
		{"", `""`},
		{"mit: doppelpunkt", `"mit: doppelpunkt"`},
		{"mit #raute", `"mit #raute"`},
		{"[klammern]", `"[klammern]"`},
		{`mit "zitat"`, `"mit \"zitat\""`},
	}

	for _, tt := range tests {
		if got := yamlScalar(tt.input); got != tt.want {
			t.Errorf("yamlScalar(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
