package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"RosterDashboard/src/config"
)

const rosterCSV = "Codigo;Fecha_Nacimiento;Estatura;Peso;Nombre_Estudiante;Apellido_Estudiante;RH;Color_Cabello;Barrio_Residencia;Talla_Zapato\r\n" +
	"1;01/01/2000;175;70;Yalen Camilo;Aguirre;O+;Negro;Centro;42\r\n" +
	"2;15/07/2001;1,80;85;Ronald;Briceno;A+;Castano;Norte;43\r\n" +
	"3;10/10/2002;168;55;Samuel;Alzate;O+;Negro;Centro;40\r\n" +
	"4;05/05/2003;160;45;Maria Camila;Rojas;B+;Rubio;Sur;37\r\n" +
	"5;20/02/2000;172;95;Juan Jose;Rivera;O+;Castano;Norte;41,5\r\n"

func writeRoster(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "estudiantes.csv")
	require.NoError(t, os.WriteFile(path, []byte(rosterCSV), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigFile, "")
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-file", filepath.Join(t.TempDir(), "app.log")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSummaryCommand(t *testing.T) {
	out, err := execute(t, "summary", "--file", writeRoster(t))
	require.NoError(t, err)

	assert.Contains(t, out, "== Grupo 051 (001, 050, 051) ==")
	assert.Regexp(t, `Actualizado: \d{4}-\d{2}-\d{2} \d{2}:\d{2}`, out)
	assert.Regexp(t, `Total de estudiantes\s+5`, out)
	assert.Regexp(t, `Estatura promedio\s+171\.0 cm`, out)
	assert.Contains(t, out, "-- Clasificación IMC --")
	assert.Contains(t, out, "-- Top 5 por estatura --")
	assert.Contains(t, out, "-- Primeras 5 filas --")
	assert.NotContains(t, out, "Tabla completa")

	// 第一名是 Ronald，身高 1,80 被换算成厘米
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "-- Top 5 por estatura") {
			assert.Regexp(t, `^Ronald\s+Briceno\s+180\s`, lines[i+2])
		}
	}
}

func TestSummaryFilters(t *testing.T) {
	path := writeRoster(t)

	out, err := execute(t, "summary", "--file", path, "--rh", "O+", "--hair", "Negro")
	require.NoError(t, err)
	assert.Regexp(t, `Total de estudiantes\s+2`, out)

	out, err = execute(t, "summary", "--file", path, "--rh", "B+", "--hair", "Negro")
	require.NoError(t, err)
	assert.Contains(t, out, emptyMessage)

	out, err = execute(t, "summary", "--file", path, "--member", "rojas")
	require.NoError(t, err)
	assert.Regexp(t, `Total de estudiantes\s+1`, out)
	assert.Contains(t, out, "-- Información individual --")
	assert.Regexp(t, `Apellido_Estudiante\s+Rojas`, out)

	_, err = execute(t, "summary", "--file", path, "--height", "190:150")
	assert.Error(t, err)
}

func TestSummaryDebugDump(t *testing.T) {
	out, err := execute(t, "summary", "--file", writeRoster(t), "--debug", "--preview", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "== Tabla completa (5 filas, 0 descartadas) ==")
	assert.Contains(t, out, "-- Primeras 1 filas --")
}

func TestSummaryMissingFile(t *testing.T) {
	_, err := execute(t, "summary", "--file", filepath.Join(t.TempDir(), "nada.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nada.xlsx")
}

func TestConfigFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "data_file: " + writeRoster(t) + "\ngroup_info: Grupo de prueba\ntop_n: 2\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out, err := execute(t, "--config", cfgPath, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "== Grupo de prueba ==")
	assert.Contains(t, out, "-- Top 2 por peso --")

	_, err = execute(t, "--config", cfgPath, "--log-level", "verbose", "summary")
	assert.Error(t, err)
}

func TestPublishCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROSTER_PUBLISH__DIR", dir)

	out, err := execute(t, "publish", "--file", writeRoster(t))
	require.NoError(t, err)
	assert.Contains(t, out, "charts:   6")
	assert.Contains(t, out, "pushed:   false")

	matches, err := filepath.Glob(filepath.Join(dir, "*", "resumen.xlsx"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	f, err := excelize.OpenFile(matches[0])
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Datos")
}

func TestFetchRequiresServer(t *testing.T) {
	_, err := execute(t, "fetch")
	assert.EqualError(t, err, "email.server is not configured")
}

func TestReopenRequiresPID(t *testing.T) {
	_, err := execute(t, "reopen")
	assert.EqualError(t, err, "--pid is required")
}

func TestSchedulerJobs(t *testing.T) {
	a := &app{}
	t.Setenv(config.EnvConfigFile, "")
	require.NoError(t, a.setup(newRootCmd(), rootFlags{logName: filepath.Join(t.TempDir(), "app.log")}))
	defer a.logger.Close()

	a.cfg.Publish.Schedule = "0 0 7 * * *"
	_, err := a.scheduler()
	require.NoError(t, err)

	a.cfg.Publish.Schedule = "cada dia"
	_, err = a.scheduler()
	assert.Error(t, err)
}
