package file

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

var errNoSheets = errors.New("workbook has no sheets")

// excelizeCandidate 使用 excelize 读取 xlsx
// 单元格取原始值，日期保持 Excel 序列号，交给清洗阶段解析
type excelizeCandidate struct {
	sheet string
}

func (c excelizeCandidate) Name() string { return "xlsx/excelize" }

func (c excelizeCandidate) Decode(data []byte) (*RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("excelize open: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errNoSheets
	}
	sheet := sheets[0]
	for _, name := range sheets {
		if c.sheet != "" && name == c.sheet {
			sheet = name
			break
		}
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("excelize read sheet %s: %w", sheet, err)
	}
	return rowsToTable(rows, c.Name()), nil
}

// xlsxCandidate 使用 tealeg/xlsx 读取，作为 excelize 失败时的备选
type xlsxCandidate struct {
	sheet string
}

func (c xlsxCandidate) Name() string { return "xlsx/tealeg" }

func (c xlsxCandidate) Decode(data []byte) (*RawTable, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, fmt.Errorf("xlsx open: %w", err)
	}
	if len(xlFile.Sheets) == 0 {
		return nil, errNoSheets
	}

	sheet := xlFile.Sheets[0]
	if s, ok := xlFile.Sheet[c.sheet]; ok && c.sheet != "" {
		sheet = s
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			if cell != nil {
				cells[i] = cell.Value
			}
		}
		rows = append(rows, cells)
	}
	return rowsToTable(rows, c.Name()), nil
}
