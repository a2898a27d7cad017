package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RosterDashboard/src/config"
	"RosterDashboard/src/dashboard"
	"RosterDashboard/src/datasource/file"
	"RosterDashboard/src/metrics"
	"RosterDashboard/src/processor"
	"RosterDashboard/src/storage"
)

type staticLoader struct {
	table *processor.Table
	err   error
}

func (l staticLoader) Load(string) (*processor.Table, error) { return l.table, l.err }

func rosterTable(t *testing.T) *processor.Table {
	t.Helper()
	raw := &file.RawTable{
		Columns: []string{"Codigo", "Fecha_Nacimiento", "Estatura", "Peso", "Nombre_Estudiante", "Apellido_Estudiante", "RH", "Color_Cabello", "Barrio_Residencia", "Talla_Zapato"},
		Rows: [][]string{
			{"1", "01/01/2000", "175", "70", "Yalen Camilo", "Aguirre", "O+", "Negro", "Centro", "42"},
			{"2", "15/07/2001", "1,80", "85", "Ronald", "Briceño", "A+", "Castaño", "Norte", "43"},
			{"3", "10/10/2002", "168", "55", "Samuel", "Alzate", "O+", "Negro", "Centro", "40"},
			{"4", "05/05/2003", "160", "45", "Maria Camila", "Rojas", "B+", "Rubio", "Sur", "37"},
			{"5", "20/02/2000", "172", "95", "Juan Jose", "Rivera", "O+", "Castaño", "Norte", "41,5"},
		},
	}
	n := &processor.Normalizer{Now: func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }}
	table, err := n.Normalize(raw)
	require.NoError(t, err)
	return table
}

func newTestServer(t *testing.T, loader TableLoader) (*Server, *metrics.Manager) {
	t.Helper()
	m := metrics.NewManager()
	return NewServer(loader, config.New(), storage.Discard(), m), m
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, staticLoader{})
	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSummary(t *testing.T) {
	s, _ := newTestServer(t, staticLoader{table: rosterTable(t)})

	rec := get(t, s.Handler(), "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[summaryResponse](t, rec)

	assert.Equal(t, "Grupo 051 (001, 050, 051)", resp.Group)
	assert.False(t, resp.Empty)
	assert.Equal(t, 5, resp.KPIs.Total)
	assert.InDelta(t, 171, resp.KPIs.MeanHeight, 1e-9)
	require.NotEmpty(t, resp.TopHeight)
	assert.Equal(t, "Ronald", resp.TopHeight[0][processor.ColFirstName])
	assert.EqualValues(t, 180, resp.TopHeight[0][processor.ColHeight])
	assert.Equal(t, "Juan Jose", resp.TopWeight[0][processor.ColFirstName])
	assert.Len(t, resp.Charts, 6)
	assert.Equal(t, 5, resp.Stats[processor.ColHeight].Count)
}

func TestSummaryFilters(t *testing.T) {
	s, _ := newTestServer(t, staticLoader{table: rosterTable(t)})

	rec := get(t, s.Handler(), "/api/summary?rh=O%2B&hair=Negro")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[summaryResponse](t, rec)
	assert.Equal(t, 2, resp.KPIs.Total)
	assert.Contains(t, resp.Charts[0], "?hair=Negro&rh=O%2B")

	rec = get(t, s.Handler(), "/api/summary?rh=O%2B,A%2B&age=22:")
	resp = decode[summaryResponse](t, rec)
	assert.Equal(t, 3, resp.KPIs.Total)

	rec = get(t, s.Handler(), "/api/summary?member=rojas&height=150:170")
	resp = decode[summaryResponse](t, rec)
	assert.Equal(t, 1, resp.KPIs.Total)

	rec = get(t, s.Handler(), "/api/summary?rh=B%2B&hair=Negro")
	resp = decode[summaryResponse](t, rec)
	assert.True(t, resp.Empty)
	assert.Equal(t, emptyMessage, resp.Message)
	assert.Equal(t, 0, resp.KPIs.Total)
	assert.Empty(t, resp.Charts)
}

func TestBadParameters(t *testing.T) {
	s, _ := newTestServer(t, staticLoader{table: rosterTable(t)})

	for _, target := range []string{"/api/summary?age=20", "/api/summary?age=a:b", "/api/summary?height=190:150", "/api/preview?n=-1"} {
		rec := get(t, s.Handler(), target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "INVALID_PARAMETER", decode[APIError](t, rec).ErrorCode, target)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&file.SourceError{Kind: file.ErrSourceNotFound, Path: "x.xlsx", Dir: "/data"}, http.StatusServiceUnavailable, "SOURCE_NOT_FOUND"},
		{&file.SourceError{Kind: file.ErrEmptySource, Path: "x.csv"}, http.StatusServiceUnavailable, "EMPTY_SOURCE"},
		{&processor.SchemaError{Missing: []string{processor.ColWeight}}, http.StatusUnprocessableEntity, "SCHEMA_ERROR"},
		{processor.ErrNoUsableRows, http.StatusUnprocessableEntity, "NO_USABLE_ROWS"},
	}
	for _, tt := range tests {
		s, _ := newTestServer(t, staticLoader{err: tt.err})
		rec := get(t, s.Handler(), "/api/summary")
		assert.Equal(t, tt.status, rec.Code)
		apiErr := decode[APIError](t, rec)
		assert.Equal(t, tt.code, apiErr.ErrorCode)
		assert.Equal(t, tt.err.Error(), apiErr.Message)
	}
}

func TestRecordsOptionsPreview(t *testing.T) {
	s, _ := newTestServer(t, staticLoader{table: rosterTable(t)})

	rec := get(t, s.Handler(), "/api/records?neighborhood=Norte")
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[struct {
		Count   int              `json:"count"`
		Records []map[string]any `json:"records"`
	}](t, rec)
	assert.Equal(t, 2, records.Count)
	assert.Equal(t, "2", records.Records[0][processor.ColCode])
	assert.Equal(t, "41", records.Records[1][processor.ColShoeSize])

	rec = get(t, s.Handler(), "/api/options")
	require.Equal(t, http.StatusOK, rec.Code)
	opts := decode[[]dashboard.FilterOptions](t, rec)
	require.Len(t, opts, len(dashboard.DefaultFilters))
	assert.Equal(t, dashboard.AllMembers, opts[0].Values[0])

	rec = get(t, s.Handler(), "/api/preview?n=2")
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[struct {
		Rows    [][]string `json:"rows"`
		Total   int        `json:"total"`
		BuiltAt time.Time  `json:"built_at"`
	}](t, rec)
	assert.Len(t, preview.Rows, 2)
	assert.Equal(t, 5, preview.Total)
	assert.Equal(t, time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC), preview.BuiltAt.UTC())
}

func TestIndividualAndGroups(t *testing.T) {
	s, _ := newTestServer(t, staticLoader{table: rosterTable(t)})

	rec := get(t, s.Handler(), "/api/individual?member=Samuel+Alzate")
	require.Equal(t, http.StatusOK, rec.Code)
	card := decode[map[string]any](t, rec)
	assert.Equal(t, "3", card[processor.ColCode])
	assert.Equal(t, "Normal", card[processor.ColBMIClass])

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/individual?member=Nadie").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/individual?member=TODOS").Code)

	rec = get(t, s.Handler(), "/api/groups/RH")
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode[[]dashboard.GroupCount](t, rec)
	assert.Equal(t, dashboard.GroupCount{Key: "O+", Count: 3}, groups[0])

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/groups/Inexistente").Code)
}

func TestCharts(t *testing.T) {
	s, _ := newTestServer(t, staticLoader{table: rosterTable(t)})

	rec := get(t, s.Handler(), "/charts/edad.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", rec.Body.String()[:4])

	rec = get(t, s.Handler(), "/charts/otro.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UNKNOWN_CHART", decode[APIError](t, rec).ErrorCode)

	rec = get(t, s.Handler(), "/charts/rh.png?rh=B%2B&hair=Negro")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_ENOUGH_DATA", decode[APIError](t, rec).ErrorCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, staticLoader{table: rosterTable(t)})
	get(t, s.Handler(), "/api/summary")

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `roster_dashboard_http_requests_total{code="200",route="/api/summary"} 1`)
}

func TestStreamLogs(t *testing.T) {
	logger := storage.Discard()
	s := NewServer(staticLoader{}, config.New(), logger, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/logs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(resp.Body).ReadString('\n')
		lines <- line
	}()

	logger.Info("roster reloaded", "rows", 5)
	select {
	case line := <-lines:
		assert.Contains(t, line, `msg="roster reloaded" rows=5`)
	case <-time.After(3 * time.Second):
		t.Fatal("no log line received")
	}
	cancel()
	_, _ = io.Copy(io.Discard, resp.Body)
}

func ExampleServer() {
	table, _ := (&processor.Normalizer{}).Normalize(&file.RawTable{
		Columns: processor.RequiredColumns,
		Rows:    [][]string{{"1", "2000-01-01", "170", "65", "Ana", "Gil"}},
	})
	s := NewServer(staticLoader{table: table}, config.New(), nil, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/preview?n=1", nil))
	fmt.Println(rec.Code)
	// Output: 200
}
