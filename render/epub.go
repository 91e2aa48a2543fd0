package render

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	fixzip "github.com/hidez8891/zip"
	"go.uber.org/zap"

	"booksmith/config"
)

const (
	mimetypeContent = "application/epub+zip"
	oebpsDir        = "OEBPS"
)

const stylesheet = `body { font-family: serif; line-height: 1.4; margin: 0 1em; }
h1 { text-align: center; margin: 2em 0 1em; }
h2 { text-align: center; font-weight: normal; font-style: italic; }
p { text-indent: 1.5em; margin: 0 0 0.3em; text-align: justify; }
.title-page { text-align: center; margin-top: 30%; }
`

// EPUB writes EPUB 2 book with title page, one XHTML file per chapter and
// NCX navigation.
type EPUB struct {
	cfg    config.EPUBConfig
	fixZip bool
	dest   string
	log    *zap.Logger
}

type chapterData struct {
	ID       string
	Filename string
	Title    string
	Doc      *etree.Document
}

type bookInfo struct {
	ID       string
	Title    string
	Genre    string
	Language string
}

func (r *EPUB) Render(ctx context.Context, title, genre string, chapters []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := prepareDest(r.dest, r.log); err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("unable to generate book identifier: %w", err)
	}
	info := bookInfo{ID: "urn:uuid:" + id.String(), Title: title, Genre: genre, Language: r.cfg.Language}

	r.log.Info("Generating EPUB", zap.String("output", r.dest), zap.Int("chapters", len(chapters)))

	f, err := os.CreateTemp(filepath.Dir(r.dest), ".*.epub")
	if err != nil {
		return "", fmt.Errorf("unable to create output file: %w", err)
	}
	tmpName := f.Name()
	defer os.Remove(tmpName)
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	if err := writeMimetype(zw); err != nil {
		return "", fmt.Errorf("unable to write mimetype: %w", err)
	}
	if err := writeContainer(zw); err != nil {
		return "", fmt.Errorf("unable to write container: %w", err)
	}

	docs := make([]chapterData, 0, len(chapters)+1)
	docs = append(docs, titlePage(info))
	for i, text := range chapters {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		docs = append(docs, chapterToXHTML(i+1, text, info))
	}
	for _, chapter := range docs {
		if err := writeXMLToZip(zw, path.Join(oebpsDir, chapter.Filename), chapter.Doc); err != nil {
			return "", fmt.Errorf("unable to write chapter %s: %w", chapter.ID, err)
		}
	}
	if err := writeDataToZip(zw, path.Join(oebpsDir, "stylesheet.css"), []byte(stylesheet)); err != nil {
		return "", fmt.Errorf("unable to write stylesheet: %w", err)
	}
	if err := writeOPF(zw, info, docs); err != nil {
		return "", fmt.Errorf("unable to write OPF: %w", err)
	}
	if err := writeNCX(zw, info, docs); err != nil {
		return "", fmt.Errorf("unable to write NCX: %w", err)
	}

	// make sure buffers are flushed before continuing
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("unable to close output archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("unable to finalize output file: %w", err)
	}

	if r.fixZip {
		err = copyZipWithoutDataDescriptors(tmpName, r.dest)
	} else {
		err = copyFile(tmpName, r.dest)
	}
	if err != nil {
		return "", err
	}
	return r.dest, nil
}

func copyZipWithoutDataDescriptors(from, to string) error {

	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", to, err)
	}
	defer out.Close()

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	defer w.Close()

	for _, file := range r.File {
		// unset data descriptor flag.
		file.Flags &= ^fixzip.FlagDataDescriptor

		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("unable to write target file (%s): %w", to, err)
		}
	}
	return nil
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, mimetypeContent)
	return err
}

func writeContainer(zw *zip.Writer) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")

	rootfiles := container.CreateElement("rootfiles")
	rootfile := rootfiles.CreateElement("rootfile")
	rootfile.CreateAttr("full-path", path.Join(oebpsDir, "content.opf"))
	rootfile.CreateAttr("media-type", "application/oebps-package+xml")

	return writeXMLToZip(zw, "META-INF/container.xml", doc)
}

func createXHTMLDocument(title, lang string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	html.CreateAttr("xml:lang", lang)

	head := html.CreateElement("head")

	meta := head.CreateElement("meta")
	meta.CreateAttr("http-equiv", "Content-Type")
	meta.CreateAttr("content", "text/html; charset=utf-8")

	link := head.CreateElement("link")
	link.CreateAttr("rel", "stylesheet")
	link.CreateAttr("type", "text/css")
	link.CreateAttr("href", "stylesheet.css")

	titleElem := head.CreateElement("title")
	titleElem.SetText(title)

	return doc, html.CreateElement("body")
}

func titlePage(info bookInfo) chapterData {
	doc, body := createXHTMLDocument(info.Title, info.Language)
	div := body.CreateElement("div")
	div.CreateAttr("class", "title-page")
	div.CreateElement("h1").SetText(info.Title)
	if info.Genre != "" {
		div.CreateElement("h2").SetText(info.Genre)
	}
	return chapterData{ID: "title-page", Filename: "title.xhtml", Title: info.Title, Doc: doc}
}

func chapterToXHTML(index int, text string, info bookInfo) chapterData {
	heading, rest := chapterHeading(index, text)
	doc, body := createXHTMLDocument(heading, info.Language)

	h1 := body.CreateElement("h1")
	h1.CreateAttr("id", fmt.Sprintf("ch%d", index))
	h1.SetText(heading)
	for _, p := range paragraphs(rest) {
		body.CreateElement("p").SetText(p)
	}
	return chapterData{
		ID:       fmt.Sprintf("chapter-%d", index),
		Filename: fmt.Sprintf("chapter_%04d.xhtml", index),
		Title:    heading,
		Doc:      doc,
	}
}

func writeOPF(zw *zip.Writer, info bookInfo, chapters []chapterData) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	pkg.CreateAttr("unique-identifier", "BookId")
	pkg.CreateAttr("version", "2.0")

	metadata := pkg.CreateElement("metadata")
	metadata.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	metadata.CreateAttr("xmlns:opf", "http://www.idpf.org/2007/opf")

	metadata.CreateElement("dc:title").SetText(info.Title)

	dcIdentifier := metadata.CreateElement("dc:identifier")
	dcIdentifier.CreateAttr("id", "BookId")
	dcIdentifier.CreateAttr("opf:scheme", "UUID")
	dcIdentifier.SetText(info.ID)

	metadata.CreateElement("dc:language").SetText(info.Language)
	if info.Genre != "" {
		metadata.CreateElement("dc:subject").SetText(info.Genre)
	}
	metadata.CreateElement("dc:date").SetText(time.Now().UTC().Format("2006-01-02"))

	manifest := pkg.CreateElement("manifest")

	item := manifest.CreateElement("item")
	item.CreateAttr("id", "ncx")
	item.CreateAttr("href", "toc.ncx")
	item.CreateAttr("media-type", "application/x-dtbncx+xml")

	cssItem := manifest.CreateElement("item")
	cssItem.CreateAttr("id", "stylesheet")
	cssItem.CreateAttr("href", "stylesheet.css")
	cssItem.CreateAttr("media-type", "text/css")

	for _, chapter := range chapters {
		item := manifest.CreateElement("item")
		item.CreateAttr("id", chapter.ID)
		item.CreateAttr("href", chapter.Filename)
		item.CreateAttr("media-type", "application/xhtml+xml")
	}

	spine := pkg.CreateElement("spine")
	spine.CreateAttr("toc", "ncx")
	for _, chapter := range chapters {
		itemref := spine.CreateElement("itemref")
		itemref.CreateAttr("idref", chapter.ID)
	}

	return writeXMLToZip(zw, path.Join(oebpsDir, "content.opf"), doc)
}

func writeNCX(zw *zip.Writer, info bookInfo, chapters []chapterData) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	ncx := doc.CreateElement("ncx")
	ncx.CreateAttr("xmlns", "http://www.daisy.org/z3986/2005/ncx/")
	ncx.CreateAttr("version", "2005-1")

	head := ncx.CreateElement("head")
	for _, m := range [][2]string{
		{"dtb:uid", info.ID},
		{"dtb:depth", "1"},
		{"dtb:totalPageCount", "0"},
		{"dtb:maxPageNumber", "0"},
	} {
		meta := head.CreateElement("meta")
		meta.CreateAttr("name", m[0])
		meta.CreateAttr("content", m[1])
	}

	ncx.CreateElement("docTitle").CreateElement("text").SetText(info.Title)

	navMap := ncx.CreateElement("navMap")
	for i, chapter := range chapters {
		navPoint := navMap.CreateElement("navPoint")
		navPoint.CreateAttr("id", chapter.ID)
		navPoint.CreateAttr("playOrder", fmt.Sprintf("%d", i+1))

		navPoint.CreateElement("navLabel").CreateElement("text").SetText(chapter.Title)

		navContent := navPoint.CreateElement("content")
		navContent.CreateAttr("src", chapter.Filename)
	}

	return writeXMLToZip(zw, path.Join(oebpsDir, "toc.ncx"), doc)
}

func writeXMLToZip(zw *zip.Writer, name string, doc *etree.Document) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	return writeDataToZip(zw, name, buf.Bytes())
}

func writeDataToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
