package catalog

import (
	"encoding/csv"
	"fmt"
	"io"

	"bakerypos/backend/internal/domain"
)

func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rowsFromRecords(records), nil
}

func WriteCSV(w io.Writer, items []domain.InventoryItem) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, item := range items {
		if err := writer.Write([]string{item.Name, priceCell(item.Price), item.Category, stockCell(item)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
