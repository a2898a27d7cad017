package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"RosterDashboard/src/dashboard"
	"RosterDashboard/src/processor"
)

// 没有匹配行时的提示
const emptyMessage = "No hay datos que coincidan con los filtros seleccionados"

type summaryFlags struct {
	member       string
	rh           []string
	hair         []string
	neighborhood []string
	age          string
	height       string
	preview      int
	debug        bool
}

func newSummaryCmd(a *app) *cobra.Command {
	var flags summaryFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Imprime indicadores, tablas y estadísticas del grupo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.summary(cmd.OutOrStdout(), flags)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.member, "member", "m", "", "member name (case-insensitive substring)")
	f.StringSliceVar(&flags.rh, "rh", nil, "blood types to keep")
	f.StringSliceVar(&flags.hair, "hair", nil, "hair colours to keep")
	f.StringSliceVar(&flags.neighborhood, "neighborhood", nil, "neighbourhoods to keep")
	f.StringVar(&flags.age, "age", "", "age range min:max")
	f.StringVar(&flags.height, "height", "", "height range in cm min:max")
	f.IntVar(&flags.preview, "preview", 5, "rows shown in the preview")
	f.BoolVar(&flags.debug, "debug", false, "dump the full normalized table")
	return cmd
}

// values 把命令行参数转换为筛选参数表
func (f summaryFlags) values() map[string][]string {
	v := make(map[string][]string)
	add := func(name string, vals ...string) {
		for _, s := range vals {
			if s != "" {
				v[name] = append(v[name], s)
			}
		}
	}
	add("member", f.member)
	add("rh", f.rh...)
	add("hair", f.hair...)
	add("neighborhood", f.neighborhood...)
	add("age", f.age)
	add("height", f.height)
	return v
}

func (a *app) summary(w io.Writer, flags summaryFlags) error {
	table, err := a.pipeline.Load(a.cfg.DataFile)
	if err != nil {
		return err
	}
	d, err := dashboard.New(table, nil, a.cfg.Members)
	if err != nil {
		return err
	}
	sel, err := dashboard.ParseSelection(flags.values(), d.Filters(), d.Options())
	if err != nil {
		return err
	}
	view, err := d.Apply(sel)
	if err != nil {
		return err
	}

	if flags.debug {
		fmt.Fprintf(w, "== Tabla completa (%d filas, %d descartadas) ==\n", table.Len(), table.Dropped())
		raw := table.RawTable()
		writeRaw(w, raw.Columns, raw.Rows)
		fmt.Fprintln(w)
	}
	return writeSummary(w, a.cfg.GroupInfo, d, view, a.cfg.TopN, flags.member, flags.preview)
}

// writeSummary 输出文本汇总
func writeSummary(w io.Writer, group string, d *dashboard.Dashboard, view *dashboard.View, topN int, member string, preview int) error {
	fmt.Fprintf(w, "== %s ==\n", group)
	fmt.Fprintf(w, "Actualizado: %s\n", d.Table().BuiltAt().Format("2006-01-02 15:04"))
	if view.Empty() {
		fmt.Fprintln(w, emptyMessage)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	k := view.KPIs()
	fmt.Fprintf(tw, "Total de estudiantes\t%d\n", k.Total)
	fmt.Fprintf(tw, "Edad promedio\t%.1f años\n", k.MeanAge)
	fmt.Fprintf(tw, "Estatura promedio\t%.1f cm\n", k.MeanHeight)
	fmt.Fprintf(tw, "Peso promedio\t%.1f kg\n", k.MeanWeight)
	fmt.Fprintf(tw, "IMC promedio\t%.1f\n", k.MeanBMI)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\n-- Clasificación IMC --")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range view.BMIClassCounts() {
		fmt.Fprintf(tw, "%s\t%d\n", c.Key, c.Count)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	topHeight, err := view.Top(processor.ColHeight, topN)
	if err != nil {
		return err
	}
	topWeight, err := view.Top(processor.ColWeight, topN)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n-- Top %d por estatura --\n", topN)
	writeRecords(w, topHeight, []string{processor.ColFirstName, processor.ColLastName, processor.ColHeight, processor.ColAge})
	fmt.Fprintf(w, "\n-- Top %d por peso --\n", topN)
	writeRecords(w, topWeight, []string{processor.ColFirstName, processor.ColLastName, processor.ColWeight, processor.ColHeight, processor.ColBMI})

	fmt.Fprintln(w, "\n-- Estadísticas --")
	if err := writeStats(w, view); err != nil {
		return err
	}

	raw := d.Preview(preview)
	fmt.Fprintf(w, "\n-- Primeras %d filas --\n", len(raw.Rows))
	writeRaw(w, raw.Columns, raw.Rows)

	if member != "" && !strings.EqualFold(member, dashboard.AllMembers) {
		fmt.Fprintln(w, "\n-- Información individual --")
		rec, ok := d.Base().Individual(member)
		if !ok {
			fmt.Fprintf(w, "No se encontró a %s\n", member)
			return nil
		}
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, col := range d.Table().Columns() {
			fmt.Fprintf(tw, "%s\t%s\n", col, rec.Value(col))
		}
		return tw.Flush()
	}
	return nil
}

func writeRecords(w io.Writer, records []*processor.Record, columns []string) {
	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(columns))
		for j, col := range columns {
			row[j] = rec.Value(col)
		}
		rows[i] = row
	}
	writeRaw(w, columns, rows)
}

func writeStats(w io.Writer, view *dashboard.View) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tcount\tmean\tstd\tmin\t25%\t50%\t75%\tmax\t")
	for _, col := range []string{processor.ColHeight, processor.ColWeight, processor.ColBMI} {
		s := view.Describe(col)
		std := "-"
		if s.Std != nil {
			std = fmt.Sprintf("%.2f", *s.Std)
		}
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			col, s.Count, s.Mean, std, s.Min, s.P25, s.P50, s.P75, s.Max)
	}
	return tw.Flush()
}

func writeRaw(w io.Writer, columns []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}
