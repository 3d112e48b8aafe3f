package daemon

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/facade"
	"github.com/matiasvillaverde/trust-core/internal/ipc"
)

// Handler answers the daemon's three IPC commands and is also the
// StatusFunc the health HTTP server polls, so both surfaces report the same
// snapshot.
type Handler struct {
	Facade    *facade.Facade
	Version   string
	StartedAt time.Time
	Shutdown  context.CancelFunc

	lastReconcile atomic.Pointer[time.Time]
}

// NewHandler builds a Handler over facade, recording startedAt for uptime
// reporting and shutdown as the daemon's own cancel function so a Shutdown
// command can unwind the main loop.
func NewHandler(f *facade.Facade, version string, startedAt time.Time, shutdown context.CancelFunc) *Handler {
	return &Handler{Facade: f, Version: version, StartedAt: startedAt, Shutdown: shutdown}
}

// Handle implements ipc.Handler.
func (h *Handler) Handle(ctx context.Context, cmd ipc.Command) ipc.Response {
	switch cmd.Kind {
	case ipc.CommandGetStatus:
		status := h.Status()
		return ipc.Response{OK: true, Status: &status}
	case ipc.CommandForceReconcile:
		synced, errs := h.Facade.ReconcileAccount(ctx, cmd.AccountID)
		now := time.Now().UTC()
		h.lastReconcile.Store(&now)
		if len(errs) > 0 {
			return ipc.Response{OK: false, Message: errs[0].Error()}
		}
		return ipc.Response{OK: true, Message: fmt.Sprintf("synced %d trades", synced)}
	case ipc.CommandShutdown:
		if h.Shutdown != nil {
			h.Shutdown()
		}
		return ipc.Response{OK: true}
	default:
		return ipc.Response{OK: false, Message: "unknown command"}
	}
}

// Status builds a StatusReport snapshot; it is also what the health HTTP
// server's /status route serves.
func (h *Handler) Status() ipc.StatusReport {
	ctx := context.Background()
	openCount := 0
	if open, err := h.Facade.ListOpenTrades(ctx, ""); err == nil {
		openCount = len(open)
	}
	return ipc.StatusReport{
		PID:             os.Getpid(),
		UptimeSeconds:   int64(time.Since(h.StartedAt).Seconds()),
		OpenTradeCount:  openCount,
		ActiveWatchers:  h.Facade.ActiveWatchers(),
		ProtectedMode:   h.Facade.Protected.Armed(),
		LastReconcileAt: h.lastReconcile.Load(),
		Version:         h.Version,
	}
}

// ReconcileOnce runs one sweep across every open trade in every account,
// the body of the cron job cmd/trustd schedules independently of any
// per-trade Watch loop an operator has running.
func (h *Handler) ReconcileOnce(ctx context.Context) (int, []error) {
	synced, errs := h.Facade.ReconcileAccount(ctx, "")
	now := time.Now().UTC()
	h.lastReconcile.Store(&now)
	return synced, errs
}
