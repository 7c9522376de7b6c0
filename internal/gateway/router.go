// Package gateway serves the chat, thread, confirmation and sheet HTTP API.
package gateway

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/KafClaw/sheetclaw/internal/agent"
	"github.com/KafClaw/sheetclaw/internal/approval"
	"github.com/KafClaw/sheetclaw/internal/audit"
	"github.com/KafClaw/sheetclaw/internal/grid"
	"github.com/KafClaw/sheetclaw/internal/tables"
	"github.com/KafClaw/sheetclaw/internal/threads"
)

// Options carries the services the handlers share.
type Options struct {
	Loop      *agent.Loop
	Threads   *threads.Store
	Ledger    *approval.Ledger
	Tables    *tables.Cache
	Sheet     *grid.Store
	Audit     audit.Publisher
	AuthToken string
	Logger    *slog.Logger
}

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Tables == nil {
		opts.Tables = tables.NewCache()
	}
	if opts.Audit == nil {
		opts.Audit = audit.Nop{}
	}

	r := chi.NewRouter()

	r.Use(cors)
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)

	healthH := NewHealthHandler(opts.Sheet)
	chatH := NewChatHandler(opts.Loop)
	threadH := NewThreadHandler(opts.Threads, opts.Ledger, opts.Tables, opts.Audit)
	confirmH := NewConfirmationHandler(opts.Ledger)
	sheetH := NewSheetHandler(opts.Sheet)

	r.Get("/health", healthH.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(opts.AuthToken))

		r.Post("/chat", chatH.Chat)
		r.Get("/sheet", sheetH.Read)

		r.Route("/threads", func(r chi.Router) {
			r.Get("/", threadH.List)
			r.Post("/", threadH.Create)
			r.Get("/{id}", threadH.Get)
			r.Delete("/{id}", threadH.Delete)
			r.Get("/{id}/table", threadH.Table)
			r.Get("/{id}/confirmations", confirmH.List)
			r.Post("/{id}/confirmations/{tool}/approve", confirmH.Approve)
			r.Post("/{id}/confirmations/{tool}/decline", confirmH.Decline)
		})
	})

	return r
}
