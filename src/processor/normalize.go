package processor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"RosterDashboard/src/datasource/file"
	"RosterDashboard/src/storage"
)

var headerInvalid = regexp.MustCompile(`[^A-Za-z0-9_]`)

// NormalizeHeader 去除首尾空白，空格换成下划线，删除其余非 [A-Za-z0-9_] 字符
func NormalizeHeader(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	return headerInvalid.ReplaceAllString(name, "")
}

// Normalizer 把原始表清洗为花名册
type Normalizer struct {
	Now    func() time.Time // 计算年龄用的时钟，nil 时使用 time.Now
	Logger *storage.Logger
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n *Normalizer) logger() *storage.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return storage.Discard()
}

// Normalize 校验表头并逐行清洗
// 只有结构性问题返回错误，单元格层面的问题变成空值
func (n *Normalizer) Normalize(raw *file.RawTable) (*Table, error) {
	if raw == nil {
		return nil, ErrNoUsableRows
	}

	headers := normalizeHeaders(raw.Columns)
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, ok := index[h]; !ok {
			index[h] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	categoricals := make([]string, 0, len(CategoricalColumns))
	for _, col := range CategoricalColumns {
		if _, ok := index[col]; ok {
			categoricals = append(categoricals, col)
		}
	}

	columns, extras := outputColumns(headers)
	now := n.now()

	t := &Table{columns: columns, builtAt: now}
	for rowIdx, row := range raw.Rows {
		cell := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		code := cell(ColCode)
		if IsMissing(code) {
			t.dropped++
			continue
		}

		r := &Record{
			Code:       strings.TrimSpace(code),
			BirthDate:  ParseBirthDate(cell(ColBirthDate), now),
			HeightCM:   NormalizeHeight(ParseNumber(cell(ColHeight))),
			WeightKG:   ParseNumber(cell(ColWeight)),
			FirstName:  optional(cell(ColFirstName)),
			LastName:   optional(cell(ColLastName)),
			Categories: make(map[string]*string, len(categoricals)),
		}
		if r.BirthDate != nil {
			age := AgeAt(*r.BirthDate, now)
			r.AgeYears = &age
		}
		r.BMI = ComputeBMI(r.WeightKG, r.HeightCM)
		r.BMIClass = Classify(r.BMI)
		r.FullName = FullName(r.FirstName, r.LastName)
		for _, col := range categoricals {
			r.Categories[col] = CleanCategory(cell(col))
		}
		if len(extras) > 0 {
			r.Extra = make(map[string]string, len(extras))
			for _, e := range extras {
				if e.index < len(row) {
					r.Extra[e.name] = row[e.index]
				}
			}
		}

		n.logger().Debug("row normalized", "row", rowIdx+1, "code", r.Code, "bmi_class", r.BMIClass.String())
		t.records = append(t.records, r)
	}

	if len(t.records) == 0 {
		return nil, ErrNoUsableRows
	}
	n.logger().Info("roster normalized", "rows", len(t.records), "dropped", t.dropped, "columns", len(columns))
	return t, nil
}

// normalizeHeaders 规范化表头，重复的名称追加 _2、_3 ...
func normalizeHeaders(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, name := range raw {
		h := NormalizeHeader(name)
		seen[h]++
		if seen[h] > 1 {
			h = h + "_" + strconv.Itoa(seen[h])
		}
		out[i] = h
	}
	return out
}

type extraColumn struct {
	name  string
	index int
}

// outputColumns 保留源列顺序，缺少的派生列追加在末尾
// 返回输出列和模型之外的列
func outputColumns(headers []string) ([]string, []extraColumn) {
	known := make(map[string]bool)
	for _, c := range RequiredColumns {
		known[c] = true
	}
	for _, c := range CategoricalColumns {
		known[c] = true
	}
	for _, c := range DerivedColumns {
		known[c] = true
	}

	var (
		columns []string
		extras  []extraColumn
		present = make(map[string]bool)
	)
	for i, h := range headers {
		if present[h] {
			continue
		}
		present[h] = true
		columns = append(columns, h)
		if !known[h] {
			extras = append(extras, extraColumn{name: h, index: i})
		}
	}
	for _, c := range DerivedColumns {
		if !present[c] {
			columns = append(columns, c)
		}
	}
	return columns, extras
}

// CleanCategory 去空白，取第一个逗号前的内容，"nan" 等空值返回 nil
func CleanCategory(s string) *string {
	if IsMissing(s) {
		return nil
	}
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ","); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" || strings.EqualFold(s, "nan") {
		return nil
	}
	return &s
}

// FullName 拼接名和姓，空的部分被省略
func FullName(first, last *string) string {
	var parts []string
	for _, p := range []*string{first, last} {
		if p == nil {
			continue
		}
		if v := strings.TrimSpace(*p); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func optional(s string) *string {
	if IsMissing(s) {
		return nil
	}
	return &s
}
