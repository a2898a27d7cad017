package file

import (
	"strconv"
	"strings"
)

// RawTable 未经清洗的表格：有序列名和字符串行
// 空单元格为空字符串，每行长度与列数相同
type RawTable struct {
	Columns []string
	Rows    [][]string
	Format  string // 成功解析的候选名称，例如 "xlsx/excelize"、"csv(;,latin-1)"
}

// Len 返回数据行数
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Value 返回第 row 行第 col 列的值，越界返回空字符串
func (t *RawTable) Value(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// rowsToTable 第一行作为表头，其余为数据
// 整行为空的行被跳过，短行补齐，长行截断
func rowsToTable(rows [][]string, format string) *RawTable {
	t := &RawTable{Format: format}

	start := -1
	for i, row := range rows {
		if !isBlankRow(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return t
	}

	header := rows[start]
	// 去掉表头末尾的空列
	for len(header) > 0 && strings.TrimSpace(header[len(header)-1]) == "" {
		header = header[:len(header)-1]
	}
	t.Columns = make([]string, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		if strings.TrimSpace(name) == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		t.Columns[i] = name
	}

	for _, row := range rows[start+1:] {
		if isBlankRow(row) {
			continue
		}
		cells := make([]string, len(t.Columns))
		copy(cells, row)
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
