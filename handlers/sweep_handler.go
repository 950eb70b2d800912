package handlers

import (
	"net/http"

	"github.com/greenfelt/club-engine/services"
)

type SweepHandler struct {
	sweepService services.SweepService
}

func NewSweepHandler(ss services.SweepService) *SweepHandler {
	return &SweepHandler{sweepService: ss}
}

// Run handles POST /internal/sweep. Normally the scheduler drives the
// sweep; this endpoint exists for operators and integration tests.
func (h *SweepHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweepService.SweepTimeouts(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, report, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
