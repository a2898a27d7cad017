package processor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSchema       = errors.New("schema error")
	ErrNoUsableRows = errors.New("no usable rows")
)

// SchemaError 缺少必需列
type SchemaError struct {
	Missing []string // 按 RequiredColumns 顺序列出的缺失列
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s (expected headers: %s)",
		strings.Join(e.Missing, ", "), strings.Join(RequiredColumns, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrSchema }
