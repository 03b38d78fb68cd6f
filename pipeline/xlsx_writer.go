package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/pricewatch-kr/danawa-scraper/models"
	"github.com/xuri/excelize/v2"
)

const xlsxSheetName = "검색결과"

// XLSXWriter streams products into a spreadsheet workbook. The workbook
// is held in memory and saved on Close; styling and column sizing are
// the consumer's business, not this writer's.
type XLSXWriter struct {
	filename string
	book     *excelize.File
	nextRow  int
	mu       sync.Mutex
}

// NewXLSXWriter initialises the workbook and writes the header row.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	book := excelize.NewFile()
	if err := book.SetSheetName(book.GetSheetName(0), xlsxSheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []interface{}{"No", "name", "price", "price_raw", "specification", "scraped_at"}
	if err := book.SetSheetRow(xlsxSheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}

	return &XLSXWriter{
		filename: filename,
		book:     book,
		nextRow:  2,
	}, nil
}

// Write appends products as numbered rows.
func (xw *XLSXWriter) Write(products []*models.Product) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	for _, product := range products {
		var price interface{}
		if product.Price != nil {
			price = *product.Price
		} else {
			price = ""
		}
		row := []interface{}{
			xw.nextRow - 1,
			product.Name,
			price,
			product.PriceRaw,
			product.Specification,
			product.ScrapedAt.Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, xw.nextRow)
		if err != nil {
			return fmt.Errorf("xlsx cell name: %w", err)
		}
		if err := xw.book.SetSheetRow(xlsxSheetName, cell, &row); err != nil {
			return fmt.Errorf("write xlsx row: %w", err)
		}
		xw.nextRow++
	}
	return nil
}

// Close saves the workbook to disk.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if err := xw.book.SaveAs(xw.filename); err != nil {
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return xw.book.Close()
}

// Validate ensures at least one data row was written.
func (xw *XLSXWriter) Validate() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.nextRow <= 2 {
		return fmt.Errorf("xlsx workbook has no data rows")
	}
	return nil
}
