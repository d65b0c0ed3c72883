package pdftext

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/invoiceflow/invoice-extractor/internal/common"
)

const (
	// Pages whose embedded text layer yields fewer characters than this are
	// treated as scanned and routed to OCR.
	minNativeChars = 100

	rowTolerance = 3.0  // vertical clustering, points
	cellGap      = 12.0 // horizontal gap that starts a new cell, points

	// A run of rows with at least this many cells is emitted as a table.
	minTableCols = 4
	minTableRows = 2
)

// Extractor recovers text from invoice PDFs. Digital PDFs go through the
// embedded text layer with table structure preserved as delimited blocks;
// scanned PDFs fall back to rasterization plus OCR.
type Extractor struct {
	cfg    common.ExtractConfig
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg common.ExtractConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Extract returns the best available text for path. The result interleaves
// plain lines with "--- TABLE p.i ---" blocks whose rows join cells with
// " | ". Failure of one strategy is not an error as long as another yields
// text; only a fully empty outcome reports common.ErrTextExtraction.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	text, err := e.nativeText(path)
	if err != nil {
		e.logger.Warn("pdftext.native.failed", "path", path, "error", err)
	}
	if len(strings.TrimSpace(text)) >= minNativeChars {
		e.logger.Info("pdftext.native.ok", "path", path, "chars", len(text))
		return text, nil
	}

	e.logger.Info("pdftext.ocr.fallback", "path", path, "native_chars", len(text))
	ocrText, ocrErr := e.ocrText(ctx, path)
	if ocrErr != nil {
		e.logger.Warn("pdftext.ocr.failed", "path", path, "error", ocrErr)
	}
	if strings.TrimSpace(ocrText) != "" {
		return ocrText, nil
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	return "", common.NewAppError(common.CodeTextExtraction, path, common.ErrTextExtraction)
}

// nativeText reads the embedded text layer page by page. The pdf reader
// panics on malformed documents instead of returning errors, so the whole
// read runs under a guard; a corrupt file degrades to the OCR path.
func (e *Extractor) nativeText(path string) (text string, err error) {
	err = guardReaderPanic(func() error {
		f, r, openErr := lpdf.Open(path)
		if openErr != nil {
			return fmt.Errorf("open pdf: %w", openErr)
		}
		defer f.Close()

		var b strings.Builder
		for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
			page := r.Page(pageNum)
			if page.V.IsNull() {
				continue
			}
			renderPage(&b, pageNum, page.Content())
		}
		text = b.String()
		return nil
	})
	return text, err
}

// guardReaderPanic converts pdf reader panics into plain errors.
func guardReaderPanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader: %v", r)
		}
	}()
	return fn()
}

// renderPage emits the page's rows, folding runs of multi-cell rows into
// numbered table blocks.
func renderPage(b *strings.Builder, pageNum int, content lpdf.Content) {
	rows := clusterRows(content)

	tableIdx := 0
	var pending [][]string
	flush := func() {
		if len(pending) >= minTableRows {
			tableIdx++
			fmt.Fprintf(b, "\n--- TABLE %d.%d ---\n", pageNum, tableIdx)
			for _, cells := range pending {
				b.WriteString(strings.Join(cells, " | "))
				b.WriteString("\n")
			}
		} else {
			for _, cells := range pending {
				b.WriteString(strings.Join(cells, " "))
				b.WriteString("\n")
			}
		}
		pending = pending[:0]
	}

	for _, row := range rows {
		cells := clusterCells(row)
		if len(cells) >= minTableCols {
			pending = append(pending, cells)
			continue
		}
		flush()
		if line := strings.Join(cells, " "); strings.TrimSpace(line) != "" {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	flush()
}

// clusterRows groups text items into visual rows. PDF Y grows upward, so
// larger Y means earlier on the page.
func clusterRows(content lpdf.Content) [][]lpdf.Text {
	items := make([]lpdf.Text, 0, len(content.Text))
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) != "" {
			items = append(items, t)
		}
	}
	if len(items) == 0 {
		return nil
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Y != items[j].Y {
			return items[i].Y > items[j].Y
		}
		return items[i].X < items[j].X
	})

	var rows [][]lpdf.Text
	current := []lpdf.Text{items[0]}
	currentY := items[0].Y
	for _, t := range items[1:] {
		if currentY-t.Y > rowTolerance {
			rows = append(rows, current)
			current = nil
			currentY = t.Y
		}
		current = append(current, t)
	}
	rows = append(rows, current)

	for _, row := range rows {
		sort.Slice(row, func(i, j int) bool { return row[i].X < row[j].X })
	}
	return rows
}

// clusterCells merges adjacent items of one row into cells, splitting where
// the horizontal gap exceeds the cell threshold.
func clusterCells(row []lpdf.Text) []string {
	if len(row) == 0 {
		return nil
	}
	var cells []string
	var cell strings.Builder
	cell.WriteString(row[0].S)
	prevEnd := row[0].X + row[0].W

	for _, t := range row[1:] {
		if t.X-prevEnd > cellGap {
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		} else if !strings.HasSuffix(cell.String(), " ") && !strings.HasPrefix(t.S, " ") {
			cell.WriteString(" ")
		}
		cell.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	if s := strings.TrimSpace(cell.String()); s != "" {
		cells = append(cells, s)
	}
	return cells
}
