package config

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readArchive(t *testing.T, name string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(name)
	if err != nil {
		t.Fatalf("unable to open report: %v", err)
	}
	defer zr.Close()

	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("unable to open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("unable to read %s: %v", f.Name, err)
		}
		out[f.Name] = string(data)
	}
	return out
}

func TestReport_Archive(t *testing.T) {
	tmpDir := t.TempDir()
	conf := ReporterConfig{Destination: filepath.Join(tmpDir, "report.zip")}

	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	logFile := filepath.Join(tmpDir, "run.log")
	if err := os.WriteFile(logFile, []byte("log line"), 0644); err != nil {
		t.Fatal(err)
	}
	book := filepath.Join(tmpDir, "book")
	if err := os.MkdirAll(filepath.Join(book, "chapters"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(book, "chapters", "chapter_1.txt"), []byte("chapter one"), 0644); err != nil {
		t.Fatal(err)
	}

	r.Store("final.log", logFile)
	r.StoreData("config/actual.yaml", []byte("version: 1"))
	if err := r.StoreCopy("book", book); err != nil {
		t.Fatalf("StoreCopy() error: %v", err)
	}
	// later changes must not affect stored copy
	if err := os.WriteFile(filepath.Join(book, "chapters", "chapter_1.txt"), []byte("changed"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	files := readArchive(t, conf.Destination)
	if !strings.Contains(files["MANIFEST"], "final.log") {
		t.Errorf("MANIFEST does not list final.log: %q", files["MANIFEST"])
	}
	if files["final.log"] != "log line" {
		t.Errorf("final.log = %q", files["final.log"])
	}
	if files["config/actual.yaml"] != "version: 1" {
		t.Errorf("config/actual.yaml = %q", files["config/actual.yaml"])
	}
	if files["book/chapters/chapter_1.txt"] != "chapter one" {
		t.Errorf("book copy = %q, want snapshot taken at StoreCopy time", files["book/chapters/chapter_1.txt"])
	}
}

func TestReport_Nil(t *testing.T) {
	var r *Report
	r.Store("x", "y")
	r.StoreData("x", nil)
	if err := r.StoreCopy("x", "y"); err != nil {
		t.Errorf("StoreCopy() on nil report error: %v", err)
	}
	if r.Name() != "" {
		t.Error("Name() on nil report must be empty")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() on nil report error: %v", err)
	}
}

func TestReport_StoreDataTwicePanics(t *testing.T) {
	r := &Report{entries: make(map[string]entry)}
	r.StoreData("data", []byte("1"))
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate StoreData")
		}
	}()
	r.StoreData("data", []byte("2"))
}
