package handlers

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/subh7987/hyper-link-remover/internal/config"
	"github.com/subh7987/hyper-link-remover/internal/db"
	"github.com/subh7987/hyper-link-remover/internal/logger"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db        *db.DB
	cfg       *config.Config
	log       *zap.Logger
	templates *template.Template
	policy    *bluemonday.Policy
	scan      *ScanProgress
}

// New creates a new Handlers instance
func New(database *db.DB, cfg *config.Config, log *zap.Logger) *Handlers {
	return &Handlers{
		db:     database,
		cfg:    cfg,
		log:    logger.Module(log, "http"),
		policy: bluemonday.UGCPolicy(),
		scan:   newScanProgress(),
	}
}

// LoadTemplates loads HTML templates from the embedded filesystem
func (h *Handlers) LoadTemplates(assets fs.FS) error {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"formatTime": formatTime,
		"yesNo":      yesNo,
		"kb":         kilobytes,
	}).ParseFS(assets,
		"templates/*.html",
		"templates/components/*.html",
	)
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	h.templates = tmpl
	return nil
}

// Routes builds the router. static serves /static/*, nil skips it.
func (h *Handlers) Routes(static fs.FS) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Routes
	r.Get("/", h.Index)
	r.Get("/health", h.Health)
	r.Post("/clean", h.Clean)
	r.Get("/search", h.Search)

	r.Route("/runs/{id}", func(r chi.Router) {
		r.Get("/", h.ViewRun)
		r.Post("/delete", h.DeleteRun)
		r.Get("/archive", h.DownloadArchive)
		r.Get("/report", h.DownloadReport)
		r.Get("/files/{fileID}", h.DownloadFile)
		r.Get("/files/{fileID}/preview", h.PreviewFile)
	})

	r.Get("/scan", h.ScanPage)
	r.Post("/scan", h.Scan)
	r.Get("/scan/progress", h.ScanProgressSSE)

	if static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}

	return r
}

// requestLogger logs one line per request with zap
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("Request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// render executes a template into the response
func (h *Handlers) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.log.Error("Template error", zap.String("template", name), zap.Error(err))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// urlID parses a numeric chi URL parameter
func urlID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func formatTime(t db.NullTime) string {
	if !t.Valid {
		return "Never"
	}
	return t.Time.Local().Format("Jan 2, 2006 3:04 PM")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func kilobytes(n int64) string {
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}
