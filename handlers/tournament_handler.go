package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/greenfelt/club-engine/middleware"
	"github.com/greenfelt/club-engine/models"
	"github.com/greenfelt/club-engine/repositories"
	"github.com/greenfelt/club-engine/services"
)

type TournamentHandler struct {
	tournamentService services.TournamentService
}

func NewTournamentHandler(ts services.TournamentService) *TournamentHandler {
	return &TournamentHandler{tournamentService: ts}
}

// Create handles POST /tournaments.
func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	actorRole, err := middleware.GetUserRoleFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input services.CreateTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.CreateTournament(r.Context(), actorID, actorRole, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// List handles GET /tournaments.
func (h *TournamentHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter repositories.ListTournamentsFilter
	query := r.URL.Query()

	if clubIDStr := query.Get("club_id"); clubIDStr != "" {
		id, err := strconv.Atoi(clubIDStr)
		if err != nil || id <= 0 {
			badRequestResponse(w, r, errors.New("invalid club_id query parameter"))
			return
		}
		filter.ClubID = &id
	}
	if statusStr := query.Get("status"); statusStr != "" {
		status := models.TournamentStatus(statusStr)
		filter.Status = &status
	}
	filter.Limit = 20
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			badRequestResponse(w, r, errors.New("invalid limit query parameter"))
			return
		}
		filter.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			badRequestResponse(w, r, errors.New("invalid offset query parameter"))
			return
		}
		filter.Offset = offset
	}

	tournaments, err := h.tournamentService.ListTournaments(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// State handles GET /tournaments/{tournamentID}/state.
func (h *TournamentHandler) State(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	// Viewer identity is optional on the state read; anonymous viewers just
	// get no your_table_id echo.
	viewerID, _ := middleware.GetUserIDFromContext(r.Context())

	state, err := h.tournamentService.GetTournamentState(r.Context(), id, viewerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, state, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Register handles POST /tournaments/{tournamentID}/register.
func (h *TournamentHandler) Register(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	playerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	reg, err := h.tournamentService.RegisterPlayer(r.Context(), id, playerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"registration": reg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) actor(w http.ResponseWriter, r *http.Request) (int, models.UserRole, bool) {
	actorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return 0, "", false
	}
	actorRole, err := middleware.GetUserRoleFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return 0, "", false
	}
	return actorID, actorRole, true
}

// Start handles POST /tournaments/{tournamentID}/start.
func (h *TournamentHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actorID, actorRole, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.tournamentService.StartTournament(r.Context(), id, actorID, actorRole); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": models.StatusRunning}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AdvanceLevel handles POST /tournaments/{tournamentID}/advance-level.
func (h *TournamentHandler) AdvanceLevel(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actorID, actorRole, ok := h.actor(w, r)
	if !ok {
		return
	}

	level, err := h.tournamentService.AdvanceLevel(r.Context(), id, actorID, actorRole)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"level": level}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Complete handles POST /tournaments/{tournamentID}/complete.
func (h *TournamentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actorID, actorRole, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.tournamentService.CompleteTournament(r.Context(), id, actorID, actorRole); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": models.StatusComplete}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Cancel handles POST /tournaments/{tournamentID}/cancel.
func (h *TournamentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actorID, actorRole, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.tournamentService.CancelTournament(r.Context(), id, actorID, actorRole); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": models.StatusCancelled}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
