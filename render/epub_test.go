package render

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"booksmith/config"
)

func readZipEntry(t *testing.T, zr *zip.Reader, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(data)
	}
	t.Fatalf("entry %s not found", name)
	return ""
}

func TestWriteMimetype(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeMimetype(zw); err != nil {
		t.Fatalf("writeMimetype() error = %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != 1 {
		t.Fatalf("Expected 1 file, got %d", len(zr.File))
	}
	if f := zr.File[0]; f.Name != "mimetype" || f.Method != zip.Store {
		t.Errorf("mimetype entry = %s/%d, want mimetype stored", f.Name, f.Method)
	}
	if got := readZipEntry(t, zr, "mimetype"); got != mimetypeContent {
		t.Errorf("Content = %v, want %v", got, mimetypeContent)
	}
}

func TestChapterToXHTML(t *testing.T) {
	info := bookInfo{ID: "urn:uuid:x", Title: "Ashfall", Language: "en"}
	ch := chapterToXHTML(2, "Chapter 2: Smoke & <Mirrors>\n\nFirst.\n\nSecond.", info)

	if ch.ID != "chapter-2" || ch.Filename != "chapter_0002.xhtml" {
		t.Errorf("chapter identity = %s/%s", ch.ID, ch.Filename)
	}
	if ch.Title != "Chapter 2: Smoke & <Mirrors>" {
		t.Errorf("Title = %q", ch.Title)
	}

	var buf bytes.Buffer
	if _, err := ch.Doc.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(buf.Bytes()); err != nil {
		t.Fatalf("chapter is not well formed: %v", err)
	}
	ps := doc.FindElements("//body/p")
	if len(ps) != 2 || ps[0].Text() != "First." || ps[1].Text() != "Second." {
		t.Errorf("unexpected paragraphs: %d", len(ps))
	}
	if h := doc.FindElement("//body/h1"); h == nil || h.Text() != "Chapter 2: Smoke & <Mirrors>" {
		t.Error("heading missing")
	}
}

func TestCopyZipWithoutDataDescriptors(t *testing.T) {
	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "source.zip")
	dstPath := filepath.Join(tmpDir, "dest.zip")

	srcFile, err := os.Create(srcPath)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	zw := zip.NewWriter(srcFile)
	w, err := zw.Create("test.txt")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err = w.Write([]byte("test content")); err != nil {
		t.Fatalf("write content: %v", err)
	}
	zw.Close()
	srcFile.Close()

	if err := copyZipWithoutDataDescriptors(srcPath, dstPath); err != nil {
		t.Fatalf("copyZipWithoutDataDescriptors() error = %v", err)
	}

	zr, err := zip.OpenReader(dstPath)
	if err != nil {
		t.Fatalf("open dest zip: %v", err)
	}
	defer zr.Close()

	if len(zr.File) != 1 {
		t.Fatalf("Expected 1 file in dest zip, got %d", len(zr.File))
	}
	if got := readZipEntry(t, &zr.Reader, "test.txt"); got != "test content" {
		t.Errorf("content = %q", got)
	}
}

func TestCopyZipWithoutDataDescriptors_NonExistentSource(t *testing.T) {
	tmpDir := t.TempDir()
	err := copyZipWithoutDataDescriptors(filepath.Join(tmpDir, "nonexistent.zip"), filepath.Join(tmpDir, "dest.zip"))
	if err == nil {
		t.Error("Expected error for non-existent source")
	}
}

func TestEPUB_Render(t *testing.T) {
	for _, fix := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "fixzip"}[fix], func(t *testing.T) {
			log := setupTestLogger(t)
			cfg := testDocumentConfig(t)
			dir := t.TempDir()
			dest := filepath.Join(dir, "Ashfall.epub")

			r, err := New(config.OutputFmtEpub, cfg, fix, dest, log)
			if err != nil {
				t.Fatal(err)
			}
			chapters := []string{"Chapter 1: Embers\nThe ash fell.", "Rain came.\n\nThen silence."}
			if _, err := r.Render(context.Background(), "Ashfall", "fantasy", chapters); err != nil {
				t.Fatalf("Render() error = %v", err)
			}

			zr, err := zip.OpenReader(dest)
			if err != nil {
				t.Fatalf("open epub: %v", err)
			}
			defer zr.Close()

			if zr.File[0].Name != "mimetype" {
				t.Errorf("first entry = %s, want mimetype", zr.File[0].Name)
			}
			if !strings.Contains(readZipEntry(t, &zr.Reader, "META-INF/container.xml"), `full-path="OEBPS/content.opf"`) {
				t.Error("container does not point to OPF")
			}

			opf := readZipEntry(t, &zr.Reader, "OEBPS/content.opf")
			for _, want := range []string{"<dc:title>Ashfall</dc:title>", "<dc:subject>fantasy</dc:subject>", "<dc:language>en</dc:language>",
				`href="chapter_0001.xhtml"`, `href="chapter_0002.xhtml"`, `<itemref idref="title-page"/>`, "urn:uuid:"} {
				if !strings.Contains(opf, want) {
					t.Errorf("OPF does not contain %s", want)
				}
			}

			ncx := readZipEntry(t, &zr.Reader, "OEBPS/toc.ncx")
			for _, want := range []string{"<text>Chapter 1: Embers</text>", "<text>Chapter 2</text>", `playOrder="3"`} {
				if !strings.Contains(ncx, want) {
					t.Errorf("NCX does not contain %s", want)
				}
			}

			if !strings.Contains(readZipEntry(t, &zr.Reader, "OEBPS/chapter_0002.xhtml"), "<p>Then silence.</p>") {
				t.Error("chapter 2 text missing")
			}

			// temporary archive is removed
			entries, _ := os.ReadDir(dir)
			if len(entries) != 1 {
				t.Errorf("output directory has %d entries, want 1", len(entries))
			}
		})
	}
}
