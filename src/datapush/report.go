package datapush

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"RosterDashboard/src/dashboard"
	"RosterDashboard/src/processor"
	"RosterDashboard/src/utils"
)

// 描述统计覆盖的列
var describedColumns = []string{processor.ColHeight, processor.ColWeight, processor.ColBMI}

// Report 一次发布的内容
type Report struct {
	RunID       string
	GeneratedAt time.Time
	Group       string
	KPIs        dashboard.KPIs
	Stats       map[string]dashboard.Stats
	TopHeight   []*processor.Record
	TopWeight   []*processor.Record
	BMIClasses  []dashboard.GroupCount
}

// BuildReport 根据视图汇总报表
func BuildReport(view *dashboard.View, group string, topN int, runID string, now time.Time) (*Report, error) {
	r := &Report{
		RunID:       runID,
		GeneratedAt: now,
		Group:       group,
		KPIs:        view.KPIs(),
		Stats:       make(map[string]dashboard.Stats, len(describedColumns)),
		BMIClasses:  view.BMIClassCounts(),
	}
	for _, col := range describedColumns {
		r.Stats[col] = view.Describe(col)
	}

	var err error
	if r.TopHeight, err = view.Top(processor.ColHeight, topN); err != nil {
		return nil, err
	}
	if r.TopWeight, err = view.Top(processor.ColWeight, topN); err != nil {
		return nil, err
	}
	return r, nil
}

// Title 消息标题
func (r *Report) Title() string {
	return fmt.Sprintf("Resumen %s %s", r.Group, r.GeneratedAt.Format("2006-01-02"))
}

// Markdown 推送和邮件使用的正文
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", r.Title())
	fmt.Fprintf(&b, "- Total de estudiantes: %d\n", r.KPIs.Total)
	fmt.Fprintf(&b, "- Edad promedio: %.1f años\n", r.KPIs.MeanAge)
	fmt.Fprintf(&b, "- Estatura promedio: %.1f cm\n", r.KPIs.MeanHeight)
	fmt.Fprintf(&b, "- Peso promedio: %.1f kg\n", r.KPIs.MeanWeight)
	fmt.Fprintf(&b, "- IMC promedio: %.1f\n", r.KPIs.MeanBMI)

	if len(r.BMIClasses) > 0 {
		b.WriteString("\n**Clasificación IMC**\n\n")
		for _, c := range r.BMIClasses {
			fmt.Fprintf(&b, "- %s: %d\n", c.Key, c.Count)
		}
	}
	writeTop(&b, "Top por estatura", r.TopHeight, processor.ColHeight, "cm")
	writeTop(&b, "Top por peso", r.TopWeight, processor.ColWeight, "kg")

	fmt.Fprintf(&b, "\n_run %s_\n", r.RunID)
	return b.String()
}

func writeTop(b *strings.Builder, title string, records []*processor.Record, col, unit string) {
	if len(records) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s**\n\n", title)
	for i, rec := range records {
		fmt.Fprintf(b, "%d. %s %s %s\n", i+1, rec.FullName, rec.Value(col), unit)
	}
}

// 工作簿中的工作表
const (
	SheetData    = "Datos"
	SheetSummary = "Resumen"
	SheetStats   = "Estadisticas"
	SheetTop     = "Top"
)

// WriteWorkbook 把清洗后的表、汇总和排名写入 xlsx
func WriteWorkbook(path string, table *processor.Table, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	raw := table.RawTable()
	rows := make([][]any, len(raw.Rows))
	for i, row := range raw.Rows {
		cells := make([]any, len(row))
		for j, v := range row {
			if v != "" {
				cells[j] = v
			}
		}
		rows[i] = cells
	}
	if err := utils.WriteSheet(f, SheetData, raw.Columns, rows); err != nil {
		return err
	}

	if err := utils.WriteSheet(f, SheetSummary, []string{"Indicador", "Valor"}, summaryRows(r)); err != nil {
		return err
	}

	statsHeader := []string{"Columna", "count", "mean", "std", "min", "25%", "50%", "75%", "max"}
	var statsRows [][]any
	for _, col := range describedColumns {
		s := r.Stats[col]
		var std any
		if s.Std != nil {
			std = *s.Std
		}
		statsRows = append(statsRows, []any{col, s.Count, s.Mean, std, s.Min, s.P25, s.P50, s.P75, s.Max})
	}
	if err := utils.WriteSheet(f, SheetStats, statsHeader, statsRows); err != nil {
		return err
	}

	var topRows [][]any
	for _, rec := range r.TopHeight {
		topRows = append(topRows, []any{processor.ColHeight, rec.Code, rec.FullName, *rec.HeightCM})
	}
	for _, rec := range r.TopWeight {
		topRows = append(topRows, []any{processor.ColWeight, rec.Code, rec.FullName, *rec.WeightKG})
	}
	if err := utils.WriteSheet(f, SheetTop, []string{"Ranking", processor.ColCode, processor.ColFullName, "Valor"}, topRows); err != nil {
		return err
	}

	// NewFile 自带的 Sheet1 不再需要
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(SheetData)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func summaryRows(r *Report) [][]any {
	rows := [][]any{
		{"Grupo", r.Group},
		{"Generado", r.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Total de estudiantes", r.KPIs.Total},
		{"Edad promedio", r.KPIs.MeanAge},
		{"Estatura promedio", r.KPIs.MeanHeight},
		{"Peso promedio", r.KPIs.MeanWeight},
		{"IMC promedio", r.KPIs.MeanBMI},
	}
	for _, c := range r.BMIClasses {
		rows = append(rows, []any{c.Key, c.Count})
	}
	return rows
}
