package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/Sternrassler/storefront/pkg/listing"
	"github.com/rs/zerolog/hlog"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"price": func(p float64) string {
		return strconv.FormatFloat(p, 'f', -1, 64)
	},
}

func parseTemplates() (*template.Template, error) {
	t, err := template.New("storefront").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// pageData is the data of the full-page templates.
type pageData struct {
	Title string
	Nav   string // active nav entry: "shop" or "feed"
	Chips []listing.Chip
	Items []catalog.Item

	// Paginated view
	PageNumber int
	PrevURL    string
	NextURL    string

	// Feed view
	ViewID  string
	MoreURL string
	HasMore bool

	// Error page
	Status  int
	Message string
}

// render executes a template into a buffer first so a template error can
// still produce a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("Template execution failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.render(w, r, status, "error", pageData{
		Title:   http.StatusText(status),
		Status:  status,
		Message: message,
	})
}
