// Package document loads source statements and exposes their text layer
// to the extractors.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"sync"

	"github.com/norkodev/finbot/internal/normalize"
)

// Document is one source file held in memory.
type Document struct {
	textErr error
	Path    string
	text    string
	folded  string
	Content []byte
	once    sync.Once
}

// New creates a document from its path and raw bytes.
func New(path string, content []byte) *Document {
	return &Document{Path: path, Content: content}
}

// FromText creates a document whose content is already plain text, such as
// the output of an external OCR step.
func FromText(path, text string) *Document {
	return New(path, []byte(text))
}

// Name returns the base file name.
func (d *Document) Name() string {
	return filepath.Base(d.Path)
}

// Ext returns the lower-cased file extension.
func (d *Document) Ext() string {
	return strings.ToLower(filepath.Ext(d.Path))
}

// Size returns the content length in bytes.
func (d *Document) Size() int64 {
	return int64(len(d.Content))
}

// Hash returns the hex sha256 of the content.
func (d *Document) Hash() string {
	sum := sha256.Sum256(d.Content)
	return hex.EncodeToString(sum[:])
}

// IsPDF reports whether the content carries a PDF header.
func (d *Document) IsPDF() bool {
	return bytes.HasPrefix(bytes.TrimLeft(d.Content, " \t\r\n"), []byte("%PDF"))
}

// Text returns the document's text layer. PDF content goes through the PDF
// text extractor; anything else is treated as text.
func (d *Document) Text() (string, error) {
	d.once.Do(func() {
		if d.IsPDF() {
			d.text, d.textErr = pdfText(d.Content)
		} else {
			d.text = strings.ReplaceAll(string(d.Content), "\r\n", "\n")
		}
		d.folded = fold(d.text)
	})
	return d.text, d.textErr
}

// Lines returns the trimmed, non-empty lines of the text layer.
func (d *Document) Lines() []string {
	text, err := d.Text()
	if err != nil {
		return nil
	}
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ContainsFold reports whether the text layer contains needle, ignoring
// case and accents.
func (d *Document) ContainsFold(needle string) bool {
	if _, err := d.Text(); err != nil {
		return false
	}
	return strings.Contains(d.folded, fold(needle))
}

func fold(s string) string {
	return normalize.FoldAccents(strings.ToUpper(s))
}
