package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"RosterDashboard/src/datasource/file"
	"RosterDashboard/src/processor"
	"RosterDashboard/src/utils"
)

// rowColumn 数据帧中记录下标所在的列
const rowColumn = "__row__"

// 基础视图要求非空的列
var baseColumns = []string{processor.ColAge, processor.ColHeight, processor.ColWeight, processor.ColBMI}

// Dashboard 基于一张只读花名册的筛选入口，可被多个请求共享
type Dashboard struct {
	table   *processor.Table
	base    []*processor.Record
	filters []FilterDef
	members []string
}

// New 构建基础视图: 年龄、身高、体重、BMI 都不为空的行
// 基础视图为空时返回 processor.ErrNoUsableRows
func New(table *processor.Table, filters []FilterDef, members []string) (*Dashboard, error) {
	if filters == nil {
		filters = DefaultFilters
	}
	d := &Dashboard{table: table, filters: filters, members: members}
	for _, r := range table.Records() {
		if r.AgeYears != nil && r.HeightCM != nil && r.WeightKG != nil && r.BMI != nil {
			d.base = append(d.base, r)
		}
	}
	if len(d.base) == 0 {
		return nil, fmt.Errorf("no rows with %s: %w", strings.Join(baseColumns, ", "), processor.ErrNoUsableRows)
	}
	return d, nil
}

// Table 返回完整的清洗结果
func (d *Dashboard) Table() *processor.Table { return d.table }

// Filters 返回筛选项定义
func (d *Dashboard) Filters() []FilterDef { return d.filters }

// Base 返回基础视图
func (d *Dashboard) Base() *View { return &View{records: d.base} }

// Preview 返回清洗结果的前 n 行
func (d *Dashboard) Preview(n int) *file.RawTable {
	raw := d.table.RawTable()
	if n >= 0 && n < len(raw.Rows) {
		raw.Rows = raw.Rows[:n]
	}
	return raw
}

// Options 计算每个筛选项的可选值
// 多选项取基础视图中去重排序后的非空值，区间取整数边界
func (d *Dashboard) Options() []FilterOptions {
	out := make([]FilterOptions, 0, len(d.filters))
	for _, f := range d.filters {
		opt := FilterOptions{FilterDef: f}
		switch f.Kind {
		case Select:
			opt.Values = append([]string{AllMembers}, d.members...)
		case MultiSelect:
			if !d.table.HasColumn(f.Column) {
				continue
			}
			seen := make(map[string]bool)
			for _, r := range d.base {
				if v := r.Value(f.Column); v != "" && !seen[v] {
					seen[v] = true
					opt.Values = append(opt.Values, v)
				}
			}
			sort.Strings(opt.Values)
		case Range:
			var lo, hi float64
			first := true
			for _, r := range d.base {
				v := r.Number(f.Column)
				if v == nil {
					continue
				}
				if first || *v < lo {
					lo = *v
				}
				if first || *v > hi {
					hi = *v
				}
				first = false
			}
			if !first {
				opt.Bounds = &Bounds{Min: math.Floor(lo), Max: math.Ceil(hi)}
			}
		}
		out = append(out, opt)
	}
	return out
}

// Apply 按顺序应用筛选项，结果为空时返回空视图而不是错误
func (d *Dashboard) Apply(sel Selection) (*View, error) {
	columns := []string{}
	for _, f := range d.filters {
		if f.Effect != Contains && d.table.HasColumn(f.Column) {
			columns = append(columns, f.Column)
		}
	}
	df := frame(d.base, columns)

	for _, f := range d.filters {
		if df.Nrow() == 0 {
			break
		}
		switch f.Effect {
		case Contains:
			needle := ""
			if vals := sel.Values[f.Name]; len(vals) > 0 {
				needle = strings.TrimSpace(vals[0])
			}
			if needle == "" || strings.EqualFold(needle, AllMembers) {
				continue
			}
			idx := d.containing(f.Column, needle)
			if len(idx) == 0 {
				return &View{}, nil
			}
			df = df.Filter(dataframe.F{Colname: rowColumn, Comparator: series.In, Comparando: idx})
		case In:
			vals := sel.Values[f.Name]
			if len(vals) == 0 || !utils.HasColumn(df, f.Column) {
				continue
			}
			df = df.Filter(dataframe.F{Colname: f.Column, Comparator: series.In, Comparando: vals})
		case Between:
			b, ok := sel.Ranges[f.Name]
			if !ok || !utils.HasColumn(df, f.Column) {
				continue
			}
			df = df.Filter(dataframe.F{Colname: f.Column, Comparator: series.GreaterEq, Comparando: b.Min})
			if df.Err == nil && df.Nrow() > 0 {
				df = df.Filter(dataframe.F{Colname: f.Column, Comparator: series.LessEq, Comparando: b.Max})
			}
		}
		if df.Err != nil {
			return nil, fmt.Errorf("apply filter %s: %w", f.Name, df.Err)
		}
	}

	records, err := d.pick(df, d.base)
	if err != nil {
		return nil, err
	}
	return &View{records: records}, nil
}

func (d *Dashboard) containing(column, needle string) []int {
	needle = strings.ToLower(needle)
	var idx []int
	for i, r := range d.base {
		if strings.Contains(strings.ToLower(r.Value(column)), needle) {
			idx = append(idx, i)
		}
	}
	return idx
}

// pick 按数据帧中的下标取回记录
func (d *Dashboard) pick(df dataframe.DataFrame, from []*processor.Record) ([]*processor.Record, error) {
	if df.Nrow() == 0 {
		return nil, nil
	}
	idx, err := df.Col(rowColumn).Int()
	if err != nil {
		return nil, fmt.Errorf("read row index: %w", err)
	}
	out := make([]*processor.Record, len(idx))
	for i, j := range idx {
		out[i] = from[j]
	}
	return out, nil
}

// frame 把记录转换为数据帧，数值列为 Float，其余为 String，空值为 NaN
func frame(records []*processor.Record, columns []string) dataframe.DataFrame {
	rows := make([]int, len(records))
	for i := range records {
		rows[i] = i
	}
	cols := []series.Series{series.New(rows, series.Int, rowColumn)}

	seen := map[string]bool{rowColumn: true}
	for _, c := range columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		if isNumeric(c) {
			vals := make([]float64, len(records))
			for i, r := range records {
				if v := r.Number(c); v != nil {
					vals[i] = *v
				} else {
					vals[i] = math.NaN()
				}
			}
			cols = append(cols, series.New(vals, series.Float, c))
			continue
		}
		vals := make([]string, len(records))
		for i, r := range records {
			if v := r.Value(c); v != "" {
				vals[i] = v
			} else {
				vals[i] = "NaN"
			}
		}
		cols = append(cols, series.New(vals, series.String, c))
	}
	return dataframe.New(cols...)
}

func isNumeric(col string) bool {
	switch col {
	case processor.ColAge, processor.ColHeight, processor.ColWeight, processor.ColBMI:
		return true
	}
	return false
}
