// Package web 花名册看板的 HTTP 接口
package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"RosterDashboard/src/charts"
	"RosterDashboard/src/config"
	"RosterDashboard/src/dashboard"
	"RosterDashboard/src/metrics"
	"RosterDashboard/src/processor"
	"RosterDashboard/src/storage"
)

// TableLoader 返回当前的花名册，pipeline.Pipeline 实现了它
type TableLoader interface {
	Load(path string) (*processor.Table, error)
}

// Server 看板服务，每个请求各自构建视图
type Server struct {
	source   TableLoader
	cfg      *config.Config
	renderer charts.Renderer
	logger   *storage.Logger
	metrics  *metrics.Manager
	router   chi.Router
}

func NewServer(source TableLoader, cfg *config.Config, logger *storage.Logger, m *metrics.Manager) *Server {
	if logger == nil {
		logger = storage.Discard()
	}
	s := &Server{
		source:   source,
		cfg:      cfg,
		renderer: charts.DefaultRenderer(),
		logger:   logger,
		metrics:  m,
	}
	s.router = s.routes()
	return s
}

// Handler 返回根路由
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestMetrics)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/logs", s.streamLogs)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/summary", s.summary)
		r.Get("/records", s.records)
		r.Get("/options", s.options)
		r.Get("/preview", s.preview)
		r.Get("/individual", s.individual)
		r.Get("/groups/{column}", s.groups)
	})
	r.Get("/charts/{name}.png", s.chart)
	return r
}

// requestMetrics 按路由模板记录请求数和耗时
func (s *Server) requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(route, status, time.Since(start))
		s.logger.Debug("http request", "method", r.Method, "route", route, "status", status, "request_id", middleware.GetReqID(r.Context()))
	})
}

// load 读取花名册并应用查询中的筛选，失败时已经写好响应
func (s *Server) load(w http.ResponseWriter, r *http.Request) (*dashboard.Dashboard, *dashboard.View, bool) {
	table, err := s.source.Load(s.cfg.DataFile)
	if err != nil {
		render.Render(w, r, loadError(err))
		return nil, nil, false
	}
	d, err := dashboard.New(table, nil, s.cfg.Members)
	if err != nil {
		render.Render(w, r, loadError(err))
		return nil, nil, false
	}
	sel, err := dashboard.ParseSelection(r.URL.Query(), d.Filters(), d.Options())
	if err != nil {
		render.Render(w, r, newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", err.Error()))
		return nil, nil, false
	}
	view, err := d.Apply(sel)
	if err != nil {
		s.logger.Error("apply filters failed", "error", err)
		render.Render(w, r, newAPIError(http.StatusInternalServerError, "FILTER_FAILED", err.Error()))
		return nil, nil, false
	}
	return d, view, true
}

type summaryResponse struct {
	Group      string                     `json:"group"`
	Empty      bool                       `json:"empty"`
	Message    string                     `json:"message,omitempty"`
	KPIs       dashboard.KPIs             `json:"kpis"`
	BMIClasses []dashboard.GroupCount     `json:"bmi_classes"`
	Stats      map[string]dashboard.Stats `json:"stats"`
	TopHeight  []recordJSON               `json:"top_height"`
	TopWeight  []recordJSON               `json:"top_weight"`
	Charts     []string                   `json:"charts"`
}

// 没有匹配行时的提示
const emptyMessage = "No hay datos que coincidan con los filtros seleccionados"

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	_, view, ok := s.load(w, r)
	if !ok {
		return
	}
	resp := summaryResponse{
		Group:      s.cfg.GroupInfo,
		KPIs:       view.KPIs(),
		BMIClasses: view.BMIClassCounts(),
		Stats:      make(map[string]dashboard.Stats),
		TopHeight:  []recordJSON{},
		TopWeight:  []recordJSON{},
		Charts:     []string{},
	}
	if view.Empty() {
		resp.Empty = true
		resp.Message = emptyMessage
		render.JSON(w, r, resp)
		return
	}

	for _, col := range []string{processor.ColHeight, processor.ColWeight, processor.ColBMI} {
		resp.Stats[col] = view.Describe(col)
	}
	topHeight, err := view.Top(processor.ColHeight, s.cfg.TopN)
	if err != nil {
		render.Render(w, r, newAPIError(http.StatusInternalServerError, "RANK_FAILED", err.Error()))
		return
	}
	topWeight, err := view.Top(processor.ColWeight, s.cfg.TopN)
	if err != nil {
		render.Render(w, r, newAPIError(http.StatusInternalServerError, "RANK_FAILED", err.Error()))
		return
	}
	resp.TopHeight = toJSON(topHeight, []string{processor.ColFirstName, processor.ColLastName, processor.ColHeight, processor.ColAge})
	resp.TopWeight = toJSON(topWeight, []string{processor.ColFirstName, processor.ColLastName, processor.ColWeight, processor.ColHeight, processor.ColBMI})

	q := r.URL.Query().Encode()
	for _, name := range charts.Names {
		link := "/charts/" + name + ".png"
		if q != "" {
			link += "?" + q
		}
		resp.Charts = append(resp.Charts, link)
	}
	render.JSON(w, r, resp)
}

// recordJSON 一行记录，按列名输出
type recordJSON map[string]any

func toJSON(records []*processor.Record, columns []string) []recordJSON {
	out := make([]recordJSON, 0, len(records))
	for _, rec := range records {
		row := make(recordJSON, len(columns))
		for _, col := range columns {
			if n := rec.Number(col); n != nil && isNumberColumn(col) {
				row[col] = *n
				continue
			}
			if v := rec.Value(col); v != "" {
				row[col] = v
			} else {
				row[col] = nil
			}
		}
		out = append(out, row)
	}
	return out
}

func isNumberColumn(col string) bool {
	switch col {
	case processor.ColAge, processor.ColHeight, processor.ColWeight, processor.ColBMI:
		return true
	}
	return false
}

func (s *Server) records(w http.ResponseWriter, r *http.Request) {
	d, view, ok := s.load(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, map[string]any{
		"columns": d.Table().Columns(),
		"count":   view.Len(),
		"records": toJSON(view.Records(), d.Table().Columns()),
	})
}

func (s *Server) options(w http.ResponseWriter, r *http.Request) {
	d, _, ok := s.load(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, d.Options())
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r.URL.Query(), "n", 5)
	if err != nil {
		render.Render(w, r, newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", err.Error()))
		return
	}
	d, _, ok := s.load(w, r)
	if !ok {
		return
	}
	raw := d.Preview(n)
	render.JSON(w, r, map[string]any{
		"columns":  raw.Columns,
		"rows":     raw.Rows,
		"total":    d.Table().Len(),
		"dropped":  d.Table().Dropped(),
		"built_at": d.Table().BuiltAt(),
	})
}

// individual 成员卡片，按 member 参数查找
func (s *Server) individual(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("member")
	if name == "" || strings.EqualFold(name, dashboard.AllMembers) {
		render.Render(w, r, newAPIError(http.StatusBadRequest, "MISSING_PARAMETER", "parameter member is required"))
		return
	}
	d, _, ok := s.load(w, r)
	if !ok {
		return
	}
	rec, found := d.Base().Individual(name)
	if !found {
		render.Render(w, r, newAPIError(http.StatusNotFound, "MEMBER_NOT_FOUND", fmt.Sprintf("No se encontró a %s", name)))
		return
	}
	render.JSON(w, r, toJSON([]*processor.Record{rec}, d.Table().Columns())[0])
}

func (s *Server) groups(w http.ResponseWriter, r *http.Request) {
	column := chi.URLParam(r, "column")
	d, view, ok := s.load(w, r)
	if !ok {
		return
	}
	if !d.Table().HasColumn(column) {
		render.Render(w, r, newAPIError(http.StatusNotFound, "UNKNOWN_COLUMN", fmt.Sprintf("column %s not found", column)))
		return
	}
	var counts []dashboard.GroupCount
	switch {
	case column == processor.ColBMIClass:
		counts = view.BMIClassCounts()
	case isNumberColumn(column) || column == processor.ColShoeSize:
		counts = view.GroupCountNumeric(column)
	default:
		counts = view.GroupCount(column)
	}
	render.JSON(w, r, counts)
}

func (s *Server) chart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	_, view, ok := s.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := s.renderer.Render(name, view, &buf); err != nil {
		render.Render(w, r, chartError(err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// streamLogs 以分块方式持续输出日志，客户端断开后退出
func (s *Server) streamLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	logChan := s.logger.Subscribe()
	defer s.logger.Unsubscribe(logChan)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	for {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := fmt.Fprintln(w, strings.TrimRight(msg, "\n")); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}
