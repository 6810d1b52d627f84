package download

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Physical page size of the assembled document, in points. Matches the
// dimensions the platform renders page tiles at.
const (
	pageWidthPt  = 1600
	pageHeightPt = 2262
)

// Document is the assembly target: pages are appended in call order and
// the result is written once at the end.
type Document interface {
	AddImagePage(data []byte) error
	WriteFile(path string) error
}

// NewPDFDocument returns a Document producing a PDF with one full-bleed
// image per fixed-size page.
func NewPDFDocument() Document {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: pageWidthPt, Ht: pageHeightPt},
	})
	pdf.SetAutoPageBreak(false, 0)
	return &pdfDocument{pdf: pdf}
}

type pdfDocument struct {
	pdf   *fpdf.Fpdf
	pages int
}

func (d *pdfDocument) AddImagePage(data []byte) error {
	d.pages++
	name := fmt.Sprintf("page-%d", d.pages)
	opts := fpdf.ImageOptions{ImageType: imageType(data)}

	d.pdf.AddPage()
	d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	d.pdf.ImageOptions(name, 0, 0, pageWidthPt, pageHeightPt, false, opts, 0, "")
	if err := d.pdf.Error(); err != nil {
		return fmt.Errorf("failed to add page %d: %w", d.pages, err)
	}
	return nil
}

func (d *pdfDocument) WriteFile(path string) error {
	if err := d.pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// imageType maps sniffed content to fpdf's image type tags. The platform
// serves JPEG tiles today; sniffing keeps a format change from silently
// corrupting the output.
func imageType(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return "PNG"
	case "image/gif":
		return "GIF"
	default:
		return "JPG"
	}
}

// UniquePath returns dir/base+ext, disambiguated with " (N)" before the
// extension while a file of that name already exists. Never overwrites.
func UniquePath(dir, base, ext string) string {
	path := filepath.Join(dir, base+ext)
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
	}
}

// SanitizeTitle makes a book title safe to use as a file name.
func SanitizeTitle(title string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	if clean == "" {
		return "book"
	}
	return clean
}
