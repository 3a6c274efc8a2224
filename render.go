package razor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin/render"
)

// View is a view reference with its model and status, for handlers that
// pick the view at runtime.
type View interface {
	Name() string
	Data() any
	Status() int
}

type view struct {
	name   string
	data   any
	status int
}

// NewView returns a View. The status defaults to 200.
func NewView(name string, data any, status ...int) View {
	statusCode := http.StatusOK
	if len(status) > 0 {
		statusCode = status[0]
	}
	return view{
		name:   name,
		data:   data,
		status: statusCode,
	}
}

func (v view) Name() string {
	return v.name
}

func (v view) Data() any {
	return v.data
}

func (v view) Status() int {
	return v.status
}

var _ render.HTMLRender = (*HtmlRender)(nil)

// HtmlRender gin HtmlRender compatible
type HtmlRender struct {
	e *ViewEngine
}

// NewHTMLRender create a new HtmlRender
func NewHTMLRender(e *ViewEngine) *HtmlRender {
	return &HtmlRender{e: e}
}

// Instance returns a new render.Render. A View passed as data selects the
// view and model instead of name.
func (h *HtmlRender) Instance(name string, data any) render.Render {
	if v, ok := data.(View); ok {
		return &Render{e: h.e, name: v.Name(), data: v.Data()}
	}
	return &Render{e: h.e, name: name, data: data}
}

// Render renders a view with data and writes to w
type Render struct {
	e    *ViewEngine
	name string
	data any
}

// Render renders the view with data and writes to w. The view is rendered
// into memory first, so a failed render leaves w untouched and the handler
// free to write an error response.
func (r *Render) Render(w http.ResponseWriter) error {
	var buf bytes.Buffer
	if err := r.e.Render(&buf, r.name, r.data); err != nil {
		return fmt.Errorf("[render] %s: %w", r.name, err)
	}
	r.WriteContentType(w)
	_, err := buf.WriteTo(w)
	return err
}

// WriteContentType write an HTML content type to the response header if not set
func (r *Render) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = []string{"text/html; charset=utf-8"}
	}
}
