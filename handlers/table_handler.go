package handlers

import (
	"net/http"

	"github.com/greenfelt/club-engine/middleware"
	"github.com/greenfelt/club-engine/services"
)

type TableHandler struct {
	tableService services.TableService
}

func NewTableHandler(ts services.TableService) *TableHandler {
	return &TableHandler{tableService: ts}
}

// Leave handles POST /tables/{tableID}/leave. The caller leaves their own
// seat; the stack is forfeited.
func (h *TableHandler) Leave(w http.ResponseWriter, r *http.Request) {
	tableID, err := getIDFromURL(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	playerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	if err := h.tableService.Leave(r.Context(), tableID, playerID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"left": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Heartbeat handles POST /tables/{tableID}/heartbeat. A heartbeat resets
// the seat's consecutive-timeout counter.
func (h *TableHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	tableID, err := getIDFromURL(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	playerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	if err := h.tableService.Heartbeat(r.Context(), tableID, playerID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
