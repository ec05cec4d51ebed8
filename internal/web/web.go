// Package web serves the browser front end: a single page for managing the
// default system prompts and asking questions against /api/search.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

//go:embed assets
var assets embed.FS

// Options configures the UI.
type Options struct {
	// APIBase prefixes every API call made by the browser. Empty means
	// same origin.
	APIBase string
	AppName string
	// StaticDir serves index.html and static/ from disk instead of the
	// embedded copy.
	StaticDir string
}

type pageData struct {
	APIBase string
	AppName string
}

// RegisterRoutes mounts GET / and /static/*.
func RegisterRoutes(r chi.Router, opts Options, logger *zap.Logger) error {
	fsys, err := fs.Sub(assets, "assets")
	if err != nil {
		return err
	}
	if opts.StaticDir != "" {
		fsys = os.DirFS(opts.StaticDir)
		logger.Info("serving web ui from disk", zap.String("dir", opts.StaticDir))
	}

	tmpl, err := template.ParseFS(fsys, "index.html")
	if err != nil {
		return fmt.Errorf("parse index.html: %w", err)
	}
	static, err := fs.Sub(fsys, "static")
	if err != nil {
		return err
	}

	// The page never changes after startup, so render it once.
	var page bytes.Buffer
	if err := tmpl.Execute(&page, pageData{APIBase: opts.APIBase, AppName: opts.AppName}); err != nil {
		return fmt.Errorf("render index.html: %w", err)
	}
	body := page.Bytes()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(body)
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	return nil
}
