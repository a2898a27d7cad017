package file

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var (
	errTooFewColumns = errors.New("header has 2 or fewer columns")
	errHeaderOnly    = errors.New("header without data rows")
	errInvalidUTF8   = errors.New("content is not valid utf-8")
)

// 文本编码
const (
	Latin1 = "latin-1"
	UTF8   = "utf-8"
)

// DelimitedCandidate 分隔符文本候选
type DelimitedCandidate struct {
	Comma    rune
	Encoding string
}

// DelimitedCandidates 返回固定顺序的文本候选列表
func DelimitedCandidates() []Candidate {
	return []Candidate{
		DelimitedCandidate{Comma: ';', Encoding: Latin1},
		DelimitedCandidate{Comma: ',', Encoding: Latin1},
		DelimitedCandidate{Comma: ';', Encoding: UTF8},
		DelimitedCandidate{Comma: ',', Encoding: UTF8},
	}
}

func (c DelimitedCandidate) Name() string {
	return fmt.Sprintf("csv(%c,%s)", c.Comma, c.Encoding)
}

// Decode 按分隔符和编码解析文本
// 表头不超过 2 列视为失败，只有表头没有数据行返回 errHeaderOnly
func (c DelimitedCandidate) Decode(data []byte) (*RawTable, error) {
	var r io.Reader = bytes.NewReader(data)
	switch c.Encoding {
	case Latin1:
		r = transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	case UTF8:
		if !utf8.Valid(data) {
			return nil, errInvalidUTF8
		}
	default:
		return nil, fmt.Errorf("unsupported encoding %s", c.Encoding)
	}

	cr := csv.NewReader(r)
	cr.Comma = c.Comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}

	t := rowsToTable(records, c.Name())
	if len(t.Columns) <= 2 {
		return nil, errTooFewColumns
	}
	if t.Len() == 0 {
		return nil, errHeaderOnly
	}
	return t, nil
}
