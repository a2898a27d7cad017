package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"RosterDashboard/src/processor"
)

// View 筛选后的行，只持有记录指针
type View struct {
	records []*processor.Record
}

// NewView 用给定记录构建视图
func NewView(records []*processor.Record) *View {
	return &View{records: records}
}

func (v *View) Len() int { return len(v.records) }

// Empty 筛选后没有匹配的行
func (v *View) Empty() bool { return len(v.records) == 0 }

// Records 返回记录指针的副本
func (v *View) Records() []*processor.Record {
	return append([]*processor.Record(nil), v.records...)
}

// GroupCount 分组计数
type GroupCount struct {
	Key   string  `json:"key"`
	Value float64 `json:"value,omitempty"` // 数值分组时的键值
	Count int     `json:"count"`
}

// GroupCount 按列的取值计数，空值不计，按数量降序、取值升序排列
func (v *View) GroupCount(column string) []GroupCount {
	counts := make(map[string]int)
	for _, r := range v.records {
		if key := r.Value(column); key != "" {
			counts[key]++
		}
	}
	out := make([]GroupCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, GroupCount{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// GroupCountNumeric 把列转换为数值后计数，无法转换的值被忽略，按数值升序排列
func (v *View) GroupCountNumeric(column string) []GroupCount {
	counts := make(map[float64]int)
	for _, r := range v.records {
		if n := r.Number(column); n != nil {
			counts[*n]++
		}
	}
	out := make([]GroupCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, GroupCount{Key: strconv.FormatFloat(k, 'f', -1, 64), Value: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// Top 按数值列降序取前 n 行，该列为空的行不参与
func (v *View) Top(column string, n int) ([]*processor.Record, error) {
	var candidates []*processor.Record
	for _, r := range v.records {
		if r.Number(column) != nil {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 || n <= 0 {
		return nil, nil
	}

	df := numericFrame(candidates, column).Arrange(dataframe.RevSort(column))
	if df.Err != nil {
		return nil, fmt.Errorf("rank by %s: %w", column, df.Err)
	}
	if n > df.Nrow() {
		n = df.Nrow()
	}
	idx, err := df.Col(rowColumn).Int()
	if err != nil {
		return nil, fmt.Errorf("read row index: %w", err)
	}
	out := make([]*processor.Record, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[idx[i]]
	}
	return out, nil
}

// numericFrame 只包含下标列和一个数值列的数据帧
func numericFrame(records []*processor.Record, column string) dataframe.DataFrame {
	if isNumeric(column) {
		return frame(records, []string{column})
	}
	// 鞋码等文本列先转成数值
	vals := make([]float64, len(records))
	for i, r := range records {
		vals[i] = *r.Number(column)
	}
	base := frame(records, nil)
	return base.Mutate(series.New(vals, series.Float, column))
}

// Stats 描述统计，分位数使用线性插值
type Stats struct {
	Count int      `json:"count"`
	Mean  float64  `json:"mean"`
	Std   *float64 `json:"std"` // 样本标准差，少于两个值时为空
	Min   float64  `json:"min"`
	P25   float64  `json:"p25"`
	P50   float64  `json:"p50"`
	P75   float64  `json:"p75"`
	Max   float64  `json:"max"`
}

// Describe 计算数值列的描述统计，空值被忽略
func (v *View) Describe(column string) Stats {
	vals := v.values(column)
	s := Stats{Count: len(vals)}
	if len(vals) == 0 {
		return s
	}
	sort.Float64s(vals)

	m, sd := stat.MeanStdDev(vals, nil)
	s.Mean = m
	if len(vals) > 1 && !math.IsNaN(sd) {
		s.Std = &sd
	}
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	s.P25 = quantile(vals, 0.25)
	s.P50 = quantile(vals, 0.50)
	s.P75 = quantile(vals, 0.75)
	return s
}

// quantile 在已排序的数据上按 (n-1)*q 位置线性插值
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func (v *View) values(column string) []float64 {
	vals := make([]float64, 0, len(v.records))
	for _, r := range v.records {
		if n := r.Number(column); n != nil {
			vals = append(vals, *n)
		}
	}
	return vals
}

// KPIs 关键指标
type KPIs struct {
	Total      int     `json:"total"`
	MeanAge    float64 `json:"mean_age"`
	MeanHeight float64 `json:"mean_height"`
	MeanWeight float64 `json:"mean_weight"`
	MeanBMI    float64 `json:"mean_bmi"`
}

// KPIs 计算关键指标，空视图全部为 0
func (v *View) KPIs() KPIs {
	k := KPIs{Total: len(v.records)}
	if k.Total == 0 {
		return k
	}
	k.MeanAge = mean(v.values(processor.ColAge))
	k.MeanHeight = mean(v.values(processor.ColHeight))
	k.MeanWeight = mean(v.values(processor.ColWeight))
	k.MeanBMI = mean(v.values(processor.ColBMI))
	return k
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

// Individual 返回全名包含 name 的第一条记录，不区分大小写
func (v *View) Individual(name string) (*processor.Record, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, false
	}
	for _, r := range v.records {
		if strings.Contains(strings.ToLower(r.FullName), name) {
			return r, true
		}
	}
	return nil, false
}

// BMIClassCounts 各 BMI 分类的人数，按固定分类顺序
func (v *View) BMIClassCounts() []GroupCount {
	counts := make(map[processor.BMIClass]int)
	for _, r := range v.records {
		counts[r.BMIClass]++
	}
	out := make([]GroupCount, 0, len(processor.BMIClassOrder))
	for _, c := range processor.BMIClassOrder {
		if counts[c] > 0 {
			out = append(out, GroupCount{Key: c.Label(), Count: counts[c]})
		}
	}
	return out
}
