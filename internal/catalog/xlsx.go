package catalog

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"bakerypos/backend/internal/domain"
)

const sheetName = "Sheet1"

// ParseXLSX reads the first worksheet of an uploaded workbook.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rowsFromRecords(records), nil
}

func WriteXLSX(w io.Writer, items []domain.InventoryItem) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, 0, len(Header))
	for _, h := range Header {
		header = append(header, h)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	for i, item := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{item.Name, item.Price, item.Category, stockCell(item)}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}
