package handler

import (
	"encoding/json"
	"net/http"
)

// HealthChecker はヘルスチェックで疎通確認する依存を表す。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	Ping() error
}

// HealthHandler は死活監視エンドポイントのハンドラー。
type HealthHandler struct {
	db HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db HealthChecker) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health はDB疎通を含むヘルスチェック応答を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
