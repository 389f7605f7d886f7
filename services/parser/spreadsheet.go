package parser

import (
	"os"

	"github.com/extrame/xls"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/utils"
)

func parseXLSXFile(path string, log logger.Logger) ([]models.NormalizedTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open xlsx workbook")
	}
	defer f.Close()

	var tables []models.NormalizedTable
	for _, sheet := range f.GetSheetList() {
		grid, err := f.GetRows(sheet)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read sheet %q", sheet)
		}
		table, err := buildTable(utils.NormalizeTableName(sheet), path, grid)
		if err != nil {
			return nil, err
		}
		if table == nil {
			log.Debugf("Skipping empty sheet %q in %s", sheet, path)
			continue
		}
		tables = append(tables, *table)
	}
	return tables, nil
}

func parseXLSFile(path string, log logger.Logger) ([]models.NormalizedTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open xls file")
	}
	defer file.Close()

	wb, err := xls.OpenReader(file, "utf-8")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open xls workbook")
	}

	var tables []models.NormalizedTable
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		table, err := buildTable(utils.NormalizeTableName(sheet.Name), path, xlsGrid(sheet))
		if err != nil {
			return nil, err
		}
		if table == nil {
			log.Debugf("Skipping empty sheet %q in %s", sheet.Name, path)
			continue
		}
		tables = append(tables, *table)
	}
	return tables, nil
}

func xlsGrid(sheet *xls.WorkSheet) [][]string {
	grid := make([][]string, 0, int(sheet.MaxRow)+1)
	for r := 0; r <= int(sheet.MaxRow); r++ {
		row := sheet.Row(r)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol()+1)
		for c := 0; c <= row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		grid = append(grid, cells)
	}
	return grid
}
