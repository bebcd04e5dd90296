package dashboard

import (
	"embed"
	"html/template"
	"strings"
	"time"

	"decisionlog-backend/internal/decision/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"join": strings.Join,
	"date": formatDate,
	"statusLabel": func(s domain.Status) string {
		if s == domain.StatusConfirmed {
			return "confirmed"
		}
		return "awaiting confirmation"
	},
}

// formatDate prefers the decision date and falls back to when it was recorded.
func formatDate(d *time.Time, fallback time.Time) string {
	if d != nil && !d.IsZero() {
		return d.Format("Jan 2, 2006")
	}
	if fallback.IsZero() {
		return ""
	}
	return fallback.Format("Jan 2, 2006")
}

// LoadTemplates parses every embedded page. The result is installed with
// gin's SetHTMLTemplate so confirmation links render through the same set.
func LoadTemplates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}
