package handler

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"

	"bikeauth/pkg/requestcontext"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageLogin   = "login.html"
	pageGoodbye = "goodbye.html"
)

type pages struct {
	tmpl *template.Template
}

type loginPage struct {
	Flash string
}

func loadPages() *pages {
	return &pages{tmpl: template.Must(template.ParseFS(templateFS, "templates/*.html"))}
}

// render executes into a buffer so a template error never leaves a partial page.
func (h *Handler) render(ctx context.Context, w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.pages.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.ErrorContext(ctx, "failed to render page",
			"request_id", requestcontext.RequestID(ctx),
			"page", name,
			"error", err,
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
