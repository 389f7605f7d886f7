package parser

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"

	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func parseCSVFile(path string) ([]models.NormalizedTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read csv file")
	}
	return parseCSV(path, data)
}

func parseCSV(source string, data []byte) ([]models.NormalizedTable, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var grid [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(mserrors.ErrParse, "csv: %v", err)
		}
		grid = append(grid, record)
	}

	table, err := buildTable(CSVTableName, source, grid)
	if err != nil || table == nil {
		return nil, err
	}
	return []models.NormalizedTable{*table}, nil
}
