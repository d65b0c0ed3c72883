package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/invoiceflow/invoice-extractor/constants"
	"github.com/invoiceflow/invoice-extractor/internal/common"
	"github.com/invoiceflow/invoice-extractor/internal/extract"
)

// Row is one export line: invoice header fields joined with one product
// line. Multi-product invoices fan out to one row per product.
type Row struct {
	SourceFile    string
	CompanyName   string
	InvoiceNumber string
	FSSAINumber   string
	InvoiceDate   string
	Description   string
	HSNSACCode    string
	Quantity      string
	Weight        string
	WeightInKg    string
	Rate          string
	Amount        string
	Confidence    float64
	Status        string
}

var headers = []string{
	"Source File",
	"Company Name",
	"Invoice Number",
	"FSSAI Number",
	"Invoice Date",
	"Goods Description",
	"HSN/SAC Code",
	"Quantity",
	"Weight",
	"Weight (Kg)",
	"Rate",
	"Amount",
	"Confidence",
	"Status",
}

// Service flattens batch results into spreadsheet rows.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// Flatten expands results keyed by source file into export rows. Failed
// documents still produce one row so the output accounts for every input.
func (s *Service) Flatten(results map[string]extract.Result) []Row {
	var rows []Row
	for path, res := range results {
		status := "ok"
		if !res.Success {
			status = "failed"
			if res.RateLimited {
				status = "rate_limited"
			}
		}
		confidence := 0.0
		if res.ConfidenceScores != nil {
			confidence = res.ConfidenceScores.Overall
		}

		if len(res.Products) == 0 {
			rows = append(rows, Row{
				SourceFile:    path,
				CompanyName:   res.CompanyName,
				InvoiceNumber: res.InvoiceNumber,
				FSSAINumber:   res.FSSAINumber,
				InvoiceDate:   res.InvoiceDate,
				Description:   constants.NA,
				HSNSACCode:    constants.NA,
				Quantity:      constants.NA,
				Weight:        constants.NA,
				WeightInKg:    constants.NA,
				Rate:          constants.NA,
				Amount:        constants.NA,
				Confidence:    confidence,
				Status:        status,
			})
			continue
		}
		for _, p := range res.Products {
			weight := p.OriginalWeight
			if weight == "" {
				weight = p.Weight
			}
			rows = append(rows, Row{
				SourceFile:    path,
				CompanyName:   res.CompanyName,
				InvoiceNumber: res.InvoiceNumber,
				FSSAINumber:   res.FSSAINumber,
				InvoiceDate:   res.InvoiceDate,
				Description:   p.GoodsDescription,
				HSNSACCode:    p.HSNSACCode,
				Quantity:      p.Quantity,
				Weight:        weight,
				WeightInKg:    p.WeightInKg,
				Rate:          p.Rate,
				Amount:        p.Amount,
				Confidence:    confidence,
				Status:        status,
			})
		}
	}
	return rows
}

// WriteXLSX renders rows into an XLSX workbook and returns the bytes.
func (s *Service) WriteXLSX(rows []Row) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for rowIdx, r := range rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, rowIdx+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.SourceFile)
		write(2, r.CompanyName)
		write(3, r.InvoiceNumber)
		write(4, r.FSSAINumber)
		write(5, r.InvoiceDate)
		write(6, r.Description)
		write(7, r.HSNSACCode)
		write(8, r.Quantity)
		write(9, r.Weight)
		write(10, r.WeightInKg)
		write(11, r.Rate)
		write(12, r.Amount)
		write(13, fmt.Sprintf("%.2f", r.Confidence))
		write(14, r.Status)
	}

	// Widen the text-heavy columns
	_ = f.SetColWidth(sheet, "A", "A", 40) // source path
	_ = f.SetColWidth(sheet, "B", "B", 30) // company
	_ = f.SetColWidth(sheet, "F", "F", 32) // description

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, common.NewAppError(common.CodeExport, "xlsx write", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteCSV writes rows as CSV to path.
func (s *Service) WriteCSV(rows []Row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return common.NewAppError(common.CodeExport, "create csv", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return common.NewAppError(common.CodeExport, "write csv header", err)
	}
	for _, r := range rows {
		record := []string{
			r.SourceFile,
			r.CompanyName,
			r.InvoiceNumber,
			r.FSSAINumber,
			r.InvoiceDate,
			r.Description,
			r.HSNSACCode,
			r.Quantity,
			r.Weight,
			r.WeightInKg,
			r.Rate,
			r.Amount,
			fmt.Sprintf("%.2f", r.Confidence),
			r.Status,
		}
		if err := w.Write(record); err != nil {
			return common.NewAppError(common.CodeExport, "write csv row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return common.NewAppError(common.CodeExport, "flush csv", err)
	}

	s.logger.Info("export.csv.ok", "rows", len(rows), "path", path)
	return nil
}
