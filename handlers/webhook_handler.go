package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/greenfelt/club-engine/services"
)

const maxWebhookBody = 65536

type WebhookHandler struct {
	paymentService services.PaymentService
}

func NewWebhookHandler(ps services.PaymentService) *WebhookHandler {
	return &WebhookHandler{paymentService: ps}
}

// HandlePayment handles POST /webhooks/payments. The processor delivers
// at-least-once; every accepted outcome is a 200 so it stops redelivering.
func (h *WebhookHandler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		badRequestResponse(w, r, errors.New("unable to read request body"))
		return
	}

	// The signature covers the raw body; verify before decoding anything.
	signature := r.Header.Get("X-Signature")
	if err := h.paymentService.VerifySignature(payload, signature); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	var event services.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		badRequestResponse(w, r, errors.New("body contains badly-formed JSON"))
		return
	}

	outcome, err := h.paymentService.ReconcilePaidEntry(r.Context(), event)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"outcome": outcome}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
