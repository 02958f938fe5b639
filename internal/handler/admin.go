package handler

import (
	"net/http"

	"snackstore-api/internal/service"
	"snackstore-api/pkg/apierror"
	"snackstore-api/pkg/response"

	"github.com/rs/zerolog/log"
)

// AdminHandler exposes operational endpoints for the sweeper.
type AdminHandler struct {
	sweeper *service.CleanupScheduler
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(sweeper *service.CleanupScheduler) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

// RunCleanup handles POST /api/v1/internal/cleanup/run. It triggers an
// immediate sweep; if one is already in flight the call reports zero
// reclaimed sessions.
func (h *AdminHandler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := h.sweeper.RunNow(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("manual cleanup run failed")
		response.Error(w, apierror.InternalError("cleanup run failed"))
		return
	}

	response.OK(w, map[string]any{
		"reclaimed_sessions": reclaimed,
	})
}
