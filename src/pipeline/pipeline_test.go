package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RosterDashboard/src/datasource/file"
	"RosterDashboard/src/metrics"
	"RosterDashboard/src/processor"
)

const rosterCSV = "Codigo;Fecha_Nacimiento;Estatura;Peso;Nombre_Estudiante;Apellido_Estudiante;RH\n" +
	"1;15/03/2000;1,70;65;Samuel;Alzate;O+\n" +
	"2;01/08/2001;158;49,5;Maria Camila;Rojas;A+\n" +
	";01/01/2001;160;50;Sin;Codigo;B+\n"

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newPipeline(c *clock) *Pipeline {
	return New(Options{
		File: file.Options{Spreadsheet: true},
		Now:  c.Now,
	}, nil, metrics.NewManager())
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadCachesByContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	write(t, path, rosterCSV)
	c := &clock{now: time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)}
	p := newPipeline(c)

	first, err := p.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Len())
	assert.Equal(t, 1, first.Dropped())
	assert.Equal(t, 23, *first.Records()[0].AgeYears)

	again, err := p.Load(path)
	require.NoError(t, err)
	assert.Same(t, first, again)

	write(t, path, rosterCSV+"3;02/02/2002;165;55;Juan Jose;Rivera;O-\n")
	changed, err := p.Load(path)
	require.NoError(t, err)
	assert.NotSame(t, first, changed)
	assert.Equal(t, 3, changed.Len())

	p.Invalidate()
	reloaded, err := p.Load(path)
	require.NoError(t, err)
	assert.NotSame(t, changed, reloaded)
}

func TestLoadRecomputesNextDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	write(t, path, rosterCSV)
	c := &clock{now: time.Date(2024, time.March, 14, 23, 0, 0, 0, time.UTC)}
	p := newPipeline(c)

	before, err := p.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 23, *before.Records()[0].AgeYears)

	c.now = c.now.Add(2 * time.Hour)
	after, err := p.Load(path)
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Equal(t, 24, *after.Records()[0].AgeYears)
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()
	c := &clock{now: time.Now()}
	p := newPipeline(c)

	_, err := p.Load(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, file.ErrSourceNotFound)
	assert.Equal(t, "source_not_found", Result(err))

	empty := filepath.Join(dir, "empty.csv")
	write(t, empty, "")
	_, err = p.Load(empty)
	assert.ErrorIs(t, err, file.ErrEmptySource)

	noWeight := filepath.Join(dir, "sin_peso.csv")
	write(t, noWeight, "Codigo;Fecha_Nacimiento;Estatura;Nombre_Estudiante;Apellido_Estudiante\n1;01/01/2000;170;A;B\n")
	_, err = p.Load(noWeight)
	require.ErrorIs(t, err, processor.ErrSchema)
	var se *processor.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"Peso"}, se.Missing)
	assert.Equal(t, "schema_error", Result(err))

	// 修复后的文件不应命中之前的失败结果
	write(t, noWeight, rosterCSV)
	table, err := p.Load(noWeight)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "no_usable_rows", Result(processor.ErrNoUsableRows))
	assert.Equal(t, "unreadable_format", Result(&file.SourceError{Kind: file.ErrUnreadableFormat}))
	assert.Equal(t, "error", Result(errors.New("boom")))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint([]byte("a")), Fingerprint([]byte("a")))
	assert.NotEqual(t, Fingerprint([]byte("a")), Fingerprint([]byte("b")))
}
