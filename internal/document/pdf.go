package document

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"rsc.io/pdf"
)

// lineTolerance groups glyphs whose baselines differ by less than this many
// points into the same line.
const lineTolerance = 2.0

// pdfText rebuilds text lines from the PDF text layer, top to bottom and
// left to right. Scanned documents have no text layer and yield an empty
// string.
func pdfText(content []byte) (text string, err error) {
	defer func() {
		// rsc.io/pdf panics on some malformed inputs
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, line := range pageLines(page.Content().Text) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

func pageLines(glyphs []pdf.Text) []string {
	if len(glyphs) == 0 {
		return nil
	}

	sorted := make([]pdf.Text, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Y-sorted[j].Y) >= lineTolerance {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []string
	var current strings.Builder
	lineY := sorted[0].Y
	prevEnd := sorted[0].X

	for _, g := range sorted {
		if math.Abs(g.Y-lineY) >= lineTolerance {
			lines = append(lines, strings.TrimSpace(current.String()))
			current.Reset()
			lineY = g.Y
			prevEnd = g.X
		}
		// Separate runs whose gap is wider than a fraction of the font size.
		if current.Len() > 0 && g.X-prevEnd > g.FontSize*0.25 {
			current.WriteByte(' ')
		}
		current.WriteString(g.S)
		prevEnd = g.X + g.W
	}
	lines = append(lines, strings.TrimSpace(current.String()))
	return lines
}
