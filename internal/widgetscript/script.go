// Package widgetscript renders the self-contained browser script that embeds
// a widget on third-party pages.
package widgetscript

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"
)

// TruncateAt is the review text budget, in characters, for card layouts
// other than list.
const TruncateAt = 120

var (
	//go:embed widget.js.tmpl
	widgetTemplateSource string

	ErrMissingWidgetID = errors.New("widgetscript: widget id is required")
	ErrMissingBaseURL  = errors.New("widgetscript: base url is required")
)

// Script identifies the widget and the origin its data is fetched from.
type Script struct {
	WidgetID string
	BaseURL  string
}

type templateData struct {
	WidgetID   string
	BaseURL    string
	TruncateAt int
}

// Renderer executes the parsed embed template.
type Renderer struct {
	template *template.Template
}

func NewRenderer() (*Renderer, error) {
	parsed, err := template.New("widget.js").Parse(widgetTemplateSource)
	if err != nil {
		return nil, fmt.Errorf("widgetscript: parse template: %w", err)
	}
	return &Renderer{template: parsed}, nil
}

// Render writes the script for one widget. The output is fully buffered so a
// template failure never leaves a partial script on w.
func (r *Renderer) Render(w io.Writer, script Script) error {
	widgetID := strings.TrimSpace(script.WidgetID)
	if widgetID == "" {
		return ErrMissingWidgetID
	}
	baseURL := strings.TrimRight(strings.TrimSpace(script.BaseURL), "/")
	if baseURL == "" {
		return ErrMissingBaseURL
	}

	var buffer bytes.Buffer
	err := r.template.Execute(&buffer, templateData{
		WidgetID:   widgetID,
		BaseURL:    baseURL,
		TruncateAt: TruncateAt,
	})
	if err != nil {
		return fmt.Errorf("widgetscript: execute template: %w", err)
	}
	_, err = buffer.WriteTo(w)
	return err
}

// NotFoundScript is served when the requested widget does not exist.
const NotFoundScript = "console.error('ReviewWidget: Widget not found');"
