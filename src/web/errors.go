package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"RosterDashboard/src/charts"
	"RosterDashboard/src/pipeline"
	"RosterDashboard/src/processor"
)

// APIError JSON 错误响应
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

// Render 实现 render.Renderer
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

func newAPIError(status int, code, message string) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Message: message}
}

// loadError 加载失败对应的响应，消息直接给用户看
func loadError(err error) *APIError {
	code := strings.ToUpper(pipeline.Result(err))
	switch {
	case errors.Is(err, processor.ErrSchema):
		return newAPIError(http.StatusUnprocessableEntity, code, err.Error())
	case errors.Is(err, processor.ErrNoUsableRows):
		return newAPIError(http.StatusUnprocessableEntity, code, err.Error())
	default:
		return newAPIError(http.StatusServiceUnavailable, code, err.Error())
	}
}

func chartError(err error) *APIError {
	switch {
	case errors.Is(err, charts.ErrUnknownChart):
		return newAPIError(http.StatusNotFound, "UNKNOWN_CHART", err.Error())
	case errors.Is(err, charts.ErrNotEnoughData):
		return newAPIError(http.StatusNotFound, "NOT_ENOUGH_DATA", "No hay datos suficientes para este gráfico")
	default:
		return newAPIError(http.StatusInternalServerError, "CHART_FAILED", err.Error())
	}
}
