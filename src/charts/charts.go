// Package charts 把筛选后的视图渲染为 PNG 图表
package charts

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"RosterDashboard/src/dashboard"
	"RosterDashboard/src/processor"
)

// 图表名称，同时用作文件名和 URL
const (
	AgeBar          = "edad"
	BloodTypePie    = "rh"
	BMIScatter      = "imc"
	HairBar         = "cabello"
	ShoeLine        = "zapatos"
	NeighborhoodBar = "barrio"
)

// Names 所有图表，按页面顺序
var Names = []string{AgeBar, BloodTypePie, BMIScatter, HairBar, ShoeLine, NeighborhoodBar}

var (
	ErrNotEnoughData = errors.New("not enough data to draw chart")
	ErrUnknownChart  = errors.New("unknown chart")
)

// Renderer 图表尺寸和分组上限
type Renderer struct {
	Width  int
	Height int
	TopN   int // 柱状图最多显示的分组数
}

// DefaultRenderer 默认 800x480，前 10 个分组
func DefaultRenderer() Renderer {
	return Renderer{Width: 800, Height: 480, TopN: 10}
}

// Render 渲染指定图表，数据不足时返回 ErrNotEnoughData
func (r Renderer) Render(name string, v *dashboard.View, w io.Writer) error {
	if v == nil || v.Empty() {
		return ErrNotEnoughData
	}
	switch name {
	case AgeBar:
		return r.bar("Conteo de Estudiantes por Edad", v.GroupCountNumeric(processor.ColAge), w)
	case BloodTypePie:
		return r.pie("Distribución por Tipo de Sangre (RH)", v.GroupCount(processor.ColBloodType), w)
	case BMIScatter:
		return r.scatter(v, w)
	case HairBar:
		return r.bar("Top 10 Colores de Cabello", r.top(v.GroupCount(processor.ColHairColor)), w)
	case ShoeLine:
		return r.line("Distribución de Tallas de Zapatos", v.GroupCountNumeric(processor.ColShoeSize), w)
	case NeighborhoodBar:
		return r.bar("Top 10 Barrios de Residencia", r.top(v.GroupCount(processor.ColNeighborhood)), w)
	}
	return fmt.Errorf("%w: %s", ErrUnknownChart, name)
}

func (r Renderer) top(groups []dashboard.GroupCount) []dashboard.GroupCount {
	if r.TopN > 0 && len(groups) > r.TopN {
		return groups[:r.TopN]
	}
	return groups
}

func (r Renderer) bar(title string, groups []dashboard.GroupCount, w io.Writer) error {
	if len(groups) == 0 {
		return ErrNotEnoughData
	}
	bars := make([]chart.Value, len(groups))
	maxCount := 0
	for i, g := range groups {
		bars[i] = chart.Value{
			Label: g.Key,
			Value: float64(g.Count),
			Style: chart.Style{FillColor: chart.GetDefaultColor(i), StrokeColor: chart.GetDefaultColor(i)},
		}
		if g.Count > maxCount {
			maxCount = g.Count
		}
	}

	graph := chart.BarChart{
		Title:      title,
		Width:      r.Width,
		Height:     r.Height,
		BarWidth:   barWidth(r.Width, len(bars)),
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		// 只有一个分组或分组数量相同时自动范围为 0，需要显式给出
		YAxis: chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: float64(maxCount + 1)}},
		Bars:  bars,
	}
	return graph.Render(chart.PNG, w)
}

func barWidth(width, n int) int {
	bw := width / (2 * n)
	switch {
	case bw > 60:
		return 60
	case bw < 8:
		return 8
	}
	return bw
}

func (r Renderer) pie(title string, groups []dashboard.GroupCount, w io.Writer) error {
	if len(groups) == 0 {
		return ErrNotEnoughData
	}
	values := make([]chart.Value, len(groups))
	for i, g := range groups {
		values[i] = chart.Value{Label: fmt.Sprintf("%s (%d)", g.Key, g.Count), Value: float64(g.Count)}
	}
	graph := chart.PieChart{
		Title:  title,
		Width:  r.Width,
		Height: r.Height,
		Values: values,
	}
	return graph.Render(chart.PNG, w)
}

// scatter 身高-体重散点图，每个 BMI 分类一个序列
func (r Renderer) scatter(v *dashboard.View, w io.Writer) error {
	xs := make(map[processor.BMIClass][]float64)
	ys := make(map[processor.BMIClass][]float64)
	var all []float64
	var allY []float64
	for _, rec := range v.Records() {
		if rec.HeightCM == nil || rec.WeightKG == nil {
			continue
		}
		xs[rec.BMIClass] = append(xs[rec.BMIClass], *rec.HeightCM)
		ys[rec.BMIClass] = append(ys[rec.BMIClass], *rec.WeightKG)
		all = append(all, *rec.HeightCM)
		allY = append(allY, *rec.WeightKG)
	}
	if len(all) == 0 {
		return ErrNotEnoughData
	}

	var series []chart.Series
	for i, class := range processor.BMIClassOrder {
		if len(xs[class]) == 0 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name:    class.Label(),
			XValues: xs[class],
			YValues: ys[class],
			Style:   pointStyle(chart.GetDefaultColor(i)),
		})
	}

	graph := chart.Chart{
		Title:      "Estatura vs. Peso por Clasificación IMC",
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "Estatura (cm)", Range: paddedRange(all)},
		YAxis:      chart.YAxis{Name: "Peso (kg)", Range: paddedRange(allY)},
		Series:     series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph.Render(chart.PNG, w)
}

func (r Renderer) line(title string, groups []dashboard.GroupCount, w io.Writer) error {
	if len(groups) == 0 {
		return ErrNotEnoughData
	}
	xs := make([]float64, len(groups))
	ys := make([]float64, len(groups))
	maxCount := 0
	for i, g := range groups {
		xs[i] = g.Value
		ys[i] = float64(g.Count)
		if g.Count > maxCount {
			maxCount = g.Count
		}
	}

	style := pointStyle(chart.GetDefaultColor(0))
	style.StrokeWidth = 2
	style.StrokeColor = chart.GetDefaultColor(0)

	graph := chart.Chart{
		Title:      title,
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "Talla de Zapato", Range: paddedRange(xs)},
		YAxis:      chart.YAxis{Name: "Número de Estudiantes", Range: &chart.ContinuousRange{Min: 0, Max: float64(maxCount + 1)}},
		Series: []chart.Series{chart.ContinuousSeries{
			Name:    "Conteo",
			XValues: xs,
			YValues: ys,
			Style:   style,
		}},
	}
	return graph.Render(chart.PNG, w)
}

// pointStyle 只画点不画线
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    5,
		DotColor:    col,
	}
}

// paddedRange 两端各留 5%，所有值相同时留出 ±1
func paddedRange(vals []float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = 1
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}
