package utils

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"
)

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// WriteSheet 把表头和数据写入工作簿中的一个工作表，工作表不存在时创建
// nil 单元格留空
func WriteSheet(f *excelize.File, sheetName string, header []string, rows [][]any) error {
	idx, err := f.GetSheetIndex(sheetName)
	if err != nil {
		return fmt.Errorf("lookup sheet %s: %w", sheetName, err)
	}
	if idx == -1 {
		if _, err := f.NewSheet(sheetName); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheetName, err)
		}
	}

	// 写入列名
	for i, name := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return fmt.Errorf("write header %s: %w", name, err)
		}
	}

	// 写入数据
	for rowIdx, row := range rows {
		for colIdx, val := range row {
			if val == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, val); err != nil {
				return fmt.Errorf("write %s!%s: %w", sheetName, cell, err)
			}
		}
	}
	return nil
}
