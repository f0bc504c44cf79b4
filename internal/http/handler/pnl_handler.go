package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/your-org/strategy-runner/internal/engine"
	"github.com/your-org/strategy-runner/internal/report"
)

// SessionReader はペーパートレードセッションの参照操作です。
type SessionReader interface {
	ListSessions() []engine.SessionView
	GetSession(sessionID string) (engine.SessionView, error)
	Metrics(sessionID string) (report.Metrics, error)
	MarkToMarket(ctx context.Context, sessionID string) (engine.SessionView, error)
}

// PnlHandler はペーパーセッションのPnL関連のHTTPリクエストを処理します。
type PnlHandler struct {
	sessions SessionReader
}

// NewPnlHandler は新しいPnlHandlerを作成します。
func NewPnlHandler(sessions SessionReader) *PnlHandler {
	return &PnlHandler{sessions: sessions}
}

// RegisterRoutes はchiルーターにPnL関連のルートを登録します。
func (h *PnlHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.ListSessions)
	r.Get("/sessions/{sessionID}", h.GetSession)
	r.Get("/sessions/{sessionID}/metrics", h.GetMetrics)
	r.Post("/sessions/{sessionID}/mark", h.MarkToMarket)
}

// ListSessions は全セッションを作成順に返します。
func (h *PnlHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.ListSessions())
}

// GetSession は単一セッションのポートフォリオと取引履歴を返します。
func (h *PnlHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.GetSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetMetrics は最新のパフォーマンス指標を取得します。
func (h *PnlHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.sessions.Metrics(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// MarkToMarket は保有ポジションを現在価格で再評価します。
func (h *PnlHandler) MarkToMarket(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.MarkToMarket(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func sessionStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrSessionInactive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
