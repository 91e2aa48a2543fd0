package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"booksmith/config"
	"booksmith/misc"
)

// PDF writes paginated document using standard Helvetica faces, so no fonts
// are embedded. Text is WinAnsi encoded, characters outside of it are
// replaced with '?'.
type PDF struct {
	cfg  config.PDFConfig
	dest string
	log  *zap.Logger
}

const (
	fontRegular = "F1"
	fontBold    = "F2"
)

type pdfLine struct {
	text []byte
	font string
	size float64
	x, y float64
}

type pdfPage struct {
	lines []pdfLine
}

func (r *PDF) Render(ctx context.Context, title, genre string, chapters []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.cfg.PageWidth-2*r.cfg.Margin < r.cfg.FontSize*4 || r.cfg.PageHeight-2*r.cfg.Margin < r.cfg.FontSize*8 {
		return "", errors.New("page margins leave no room for text")
	}
	if err := prepareDest(r.dest, r.log); err != nil {
		return "", err
	}

	r.log.Info("Generating PDF", zap.String("output", r.dest), zap.Int("chapters", len(chapters)))

	l := newLayout(r.cfg)
	l.titlePage(title, genre)
	for i, text := range chapters {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		heading, body := chapterHeading(i+1, text)
		l.chapter(heading, paragraphs(body))
	}

	data := writePDF(l.pages, r.cfg, title, genre)
	if err := os.WriteFile(r.dest, data, 0644); err != nil {
		return "", fmt.Errorf("unable to write output file: %w", err)
	}
	r.log.Debug("PDF written", zap.Int("pages", len(l.pages)), zap.Int("bytes", len(data)))
	return r.dest, nil
}

// encodeWinAnsi normalizes text and converts it to single byte WinAnsi
// (code page 1252) used by standard PDF fonts.
func encodeWinAnsi(s string) []byte {
	s = norm.NFC.String(s)
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == '\t':
			out = append(out, ' ')
		case r < 0x80:
			out = append(out, byte(r))
		default:
			if b, ok := charmap.Windows1252.EncodeRune(r); ok {
				out = append(out, b)
			} else {
				out = append(out, '?')
			}
		}
	}
	return out
}

// wrap breaks encoded text into lines no wider than width. Words which do not
// fit on a line by themselves are split.
func wrap(text []byte, size, factor, width float64) [][]byte {
	var (
		lines [][]byte
		cur   []byte
	)
	fits := func(b []byte) bool { return textWidth(b, size)*factor <= width }

	for _, word := range bytes.Fields(text) {
		for !fits(word) {
			n := 1
			for n < len(word) && fits(word[:n+1]) {
				n++
			}
			if len(cur) > 0 {
				lines = append(lines, cur)
				cur = nil
			}
			lines = append(lines, word[:n])
			word = word[n:]
		}
		if len(word) == 0 {
			continue
		}
		candidate := word
		if len(cur) > 0 {
			candidate = append(append(append([]byte{}, cur...), ' '), word...)
		}
		if fits(candidate) {
			cur = candidate
			continue
		}
		lines = append(lines, cur)
		cur = append([]byte{}, word...)
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}
	return lines
}

type layout struct {
	cfg         config.PDFConfig
	pages       []*pdfPage
	cur         *pdfPage
	top, bottom float64
	width       float64
	y           float64
}

func newLayout(cfg config.PDFConfig) *layout {
	return &layout{
		cfg:    cfg,
		top:    cfg.PageHeight - cfg.Margin,
		bottom: cfg.Margin,
		width:  cfg.PageWidth - 2*cfg.Margin,
	}
}

func (l *layout) newPage() {
	l.cur = &pdfPage{}
	l.pages = append(l.pages, l.cur)
	l.y = l.top
}

func (l *layout) emit(text []byte, font string, size, lead float64, center bool) {
	if l.cur == nil || l.y-lead < l.bottom {
		l.newPage()
	}
	l.y -= lead
	x := l.cfg.Margin
	if center {
		w := textWidth(text, size)
		if font == fontBold {
			w *= boldFactor
		}
		x = (l.cfg.PageWidth - w) / 2
	}
	l.cur.lines = append(l.cur.lines, pdfLine{text: text, font: font, size: size, x: x, y: l.y})
}

func (l *layout) skip(h float64) {
	if l.cur != nil && l.y-h >= l.bottom {
		l.y -= h
	}
}

func (l *layout) block(text string, font string, size float64, center bool) {
	factor := 1.0
	if font == fontBold {
		factor = boldFactor
	}
	for _, line := range wrap(encodeWinAnsi(text), size, factor, l.width) {
		l.emit(line, font, size, size*l.cfg.Leading, center)
	}
}

func (l *layout) titlePage(title, genre string) {
	l.newPage()
	l.y = l.top - (l.top-l.bottom)/3
	l.block(title, fontBold, l.cfg.FontSize*2.4, true)
	if genre != "" {
		l.skip(l.cfg.FontSize * 2)
		l.block(genre, fontRegular, l.cfg.FontSize*1.3, true)
	}
}

func (l *layout) chapter(heading string, paras []string) {
	l.newPage()
	l.block(heading, fontBold, l.cfg.FontSize*1.6, false)
	l.skip(l.cfg.FontSize * l.cfg.Leading)
	for _, p := range paras {
		l.block(p, fontRegular, l.cfg.FontSize, false)
		l.skip(l.cfg.FontSize * l.cfg.Leading / 2)
	}
}

func pdfString(s []byte) string {
	var buf bytes.Buffer
	buf.WriteByte('(')
	for _, b := range s {
		switch {
		case b == '(' || b == ')' || b == '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case b < 32 || b > 126:
			fmt.Fprintf(&buf, "\\%03o", b)
		default:
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(')')
	return buf.String()
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func pageContent(p *pdfPage, number int, cfg config.PDFConfig) []byte {
	var buf bytes.Buffer
	for _, ln := range p.lines {
		fmt.Fprintf(&buf, "BT /%s %s Tf %s %s Td %s Tj ET\n", ln.font, num(ln.size), num(ln.x), num(ln.y), pdfString(ln.text))
	}
	if number > 0 {
		label := []byte(strconv.Itoa(number))
		size := cfg.FontSize * 0.8
		x := (cfg.PageWidth - textWidth(label, size)) / 2
		y := max(cfg.Margin/2, size)
		fmt.Fprintf(&buf, "BT /%s %s Tf %s %s Td %s Tj ET\n", fontRegular, num(size), num(x), num(y), pdfString(label))
	}
	return buf.Bytes()
}

// writePDF serializes pages: catalog, page tree, two fonts, document info
// and then page and content objects for every page, followed by xref table.
func writePDF(pages []*pdfPage, cfg config.PDFConfig, title, genre string) []byte {
	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xE2\xE3\xCF\xD3\n")

	const firstPage = 6
	kids := make([]byte, 0, len(pages)*8)
	for i := range pages {
		kids = fmt.Appendf(kids, "%d 0 R ", firstPage+2*i)
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", bytes.TrimSpace(kids), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold /Encoding /WinAnsiEncoding >>")
	obj(fmt.Sprintf("<< /Title %s /Subject %s /Producer %s /CreationDate (D:%s) >>",
		pdfString(encodeWinAnsi(title)), pdfString(encodeWinAnsi(genre)),
		pdfString([]byte(misc.GetAppName()+" "+misc.GetVersion())), time.Now().UTC().Format("20060102150405Z")))

	for i, p := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s %s] /Resources << /Font << /%s 3 0 R /%s 4 0 R >> >> /Contents %d 0 R >>",
			num(cfg.PageWidth), num(cfg.PageHeight), fontRegular, fontBold, firstPage+2*i+1))
		// title page carries no number
		content := pageContent(p, i, cfg)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 5 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
