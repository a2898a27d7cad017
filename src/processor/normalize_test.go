package processor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RosterDashboard/src/datasource/file"
)

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time { return time.Date(year, month, day, 10, 0, 0, 0, time.UTC) }
}

func sampleRaw() *file.RawTable {
	return &file.RawTable{
		Columns: []string{" Codigo ", "Fecha Nacimiento", "Estatura", "Peso", "Nombre Estudiante", "Apellido Estudiante", "RH", "Color Cabello", "Observación"},
		Rows: [][]string{
			{"1001", "15/03/2000", "1,62", "55,5", "Ana ", " Gómez", "O+, positivo", "Negro", "ok"},
			{"", "01/01/2001", "170", "70", "Sin", "Codigo", "A+", "Rubio", ""},
			{"1002", "36600", "175", "80", "Luis", "Pérez", "nan", "Castaño,claro", ""},
			{"1003", "no sé", "abc", "60", "Eva", "", "", "", "x"},
			{"  ", "", "", "", "", "", "", "", ""},
		},
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		" Nombre Estudiante ":        "Nombre_Estudiante",
		"Fecha de Nacimiento (d/m)":  "Fecha_de_Nacimiento_dm",
		"Código":                     "Cdigo",
		"Clasificación IMC":          "Clasificacin_IMC",
		"Talla_Zapato":               "Talla_Zapato",
		"  ":                         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestNormalizeRoster(t *testing.T) {
	n := &Normalizer{Now: fixedClock(2024, time.March, 14)}
	table, err := n.Normalize(sampleRaw())
	require.NoError(t, err)

	require.Equal(t, 3, table.Len())
	assert.Equal(t, 2, table.Dropped())
	assert.LessOrEqual(t, table.Len(), len(sampleRaw().Rows))

	assert.Equal(t, []string{
		"Codigo", "Fecha_Nacimiento", "Estatura", "Peso", "Nombre_Estudiante", "Apellido_Estudiante",
		"RH", "Color_Cabello", "Observacin", "Edad", "IMC", "Clasificacion_IMC", "Nombre_Completo",
	}, table.Columns())

	recs := table.Records()

	ana := recs[0]
	assert.Equal(t, "1001", ana.Code)
	require.NotNil(t, ana.BirthDate)
	assert.Equal(t, "2000-03-15", ana.BirthDate.Format("2006-01-02"))
	require.NotNil(t, ana.AgeYears)
	assert.Equal(t, 23, *ana.AgeYears)
	assert.InDelta(t, 162.0, *ana.HeightCM, 1e-9)
	assert.InDelta(t, 55.5, *ana.WeightKG, 1e-9)
	assert.InDelta(t, 55.5/(1.62*1.62), *ana.BMI, 1e-9)
	assert.Equal(t, Normal, ana.BMIClass)
	assert.Equal(t, "Ana Gómez", ana.FullName)
	assert.Equal(t, "Ana ", *ana.FirstName)
	assert.Equal(t, "O+", *ana.Category(ColBloodType))
	assert.Equal(t, "ok", ana.Extra["Observacin"])

	luis := recs[1]
	require.NotNil(t, luis.BirthDate)
	assert.Equal(t, "2000-03-15", luis.BirthDate.Format("2006-01-02"))
	assert.Nil(t, luis.Category(ColBloodType))
	assert.Equal(t, "Castaño", *luis.Category(ColHairColor))
	assert.Equal(t, Overweight, luis.BMIClass)

	eva := recs[2]
	assert.Nil(t, eva.BirthDate)
	assert.Nil(t, eva.AgeYears)
	assert.Nil(t, eva.HeightCM)
	assert.Nil(t, eva.BMI)
	assert.Equal(t, NoData, eva.BMIClass)
	assert.Nil(t, eva.LastName)
	assert.Equal(t, "Eva", eva.FullName)
}

func TestNormalizeFutureBirthDates(t *testing.T) {
	raw := &file.RawTable{
		Columns: RequiredColumns,
		Rows: [][]string{
			{"1", "150300", "170", "65", "Ana", "Gil"},
			{"2", "20000315", "170", "65", "Luis", "Paz"},
			{"3", "1503200", "170", "65", "Eva", "Sol"},
		},
	}
	n := &Normalizer{Now: fixedClock(2024, time.June, 1)}
	table, err := n.Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	recs := table.Records()
	assert.Nil(t, recs[0].BirthDate)
	assert.Nil(t, recs[0].AgeYears)
	require.NotNil(t, recs[1].AgeYears)
	assert.Equal(t, 24, *recs[1].AgeYears)
	assert.Nil(t, recs[2].AgeYears)
}

func TestNormalizeIdempotent(t *testing.T) {
	n := &Normalizer{Now: fixedClock(2024, time.June, 1)}
	first, err := n.Normalize(sampleRaw())
	require.NoError(t, err)

	second, err := n.Normalize(first.RawTable())
	require.NoError(t, err)

	assert.Equal(t, first.Columns(), second.Columns())
	assert.Equal(t, first.RawTable().Rows, second.RawTable().Rows)
	assert.Zero(t, second.Dropped())
}

func TestNormalizeSchemaError(t *testing.T) {
	raw := &file.RawTable{
		Columns: []string{"Codigo", "Fecha_Nacimiento", "Estatura", "Nombre_Estudiante", "Apellido_Estudiante"},
		Rows:    [][]string{{"1", "01/02/2003", "160", "A", "B"}},
	}
	_, err := (&Normalizer{}).Normalize(raw)
	require.ErrorIs(t, err, ErrSchema)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"Peso"}, se.Missing)
	assert.Contains(t, err.Error(), "Peso")

	raw.Columns = []string{"Nombre"}
	_, err = (&Normalizer{}).Normalize(raw)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, RequiredColumns, se.Missing)
}

func TestNormalizeNoUsableRows(t *testing.T) {
	raw := &file.RawTable{
		Columns: RequiredColumns,
		Rows: [][]string{
			{"", "01/02/2003", "160", "50", "A", "B"},
			{"nan", "01/02/2003", "160", "50", "A", "B"},
		},
	}
	_, err := (&Normalizer{}).Normalize(raw)
	assert.ErrorIs(t, err, ErrNoUsableRows)
}

func TestNormalizeDuplicateHeaders(t *testing.T) {
	raw := &file.RawTable{
		Columns: []string{"Codigo", "Fecha_Nacimiento", "Estatura", "Peso", "Peso", "Nombre_Estudiante", "Apellido_Estudiante"},
		Rows:    [][]string{{"1", "01/02/2003", "160", "50", "99", "A", "B"}},
	}
	table, err := (&Normalizer{}).Normalize(raw)
	require.NoError(t, err)
	assert.True(t, table.HasColumn("Peso_2"))
	rec := table.Records()[0]
	assert.InDelta(t, 50.0, *rec.WeightKG, 1e-9)
	assert.Equal(t, "99", rec.Extra["Peso_2"])
}
