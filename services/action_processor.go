package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Actions accepted by the table action processor.
const (
	ActionFold = "fold"
)

// ErrActionRejected means the processor refused the action because the hand
// or table state no longer matches the request, e.g. the player acted for
// themselves an instant before a forced fold landed. The processor is the
// single source of truth for hand progression, so callers treat this as a
// harmless no-op and never retry.
var ErrActionRejected = errors.New("action rejected: hand state no longer matches")

// ActionProcessor is the out-of-scope collaborator that executes player
// actions. This engine only ever submits forced folds through it.
type ActionProcessor interface {
	SubmitAction(ctx context.Context, tableID, handID int, action string, amount int64) error
}

// HTTPActionProcessor talks to the dealing service over HTTP with a bounded
// timeout; the sweep must never hang on a collaborator.
type HTTPActionProcessor struct {
	baseURL string
	client  *http.Client
}

func NewHTTPActionProcessor(baseURL string) *HTTPActionProcessor {
	return &HTTPActionProcessor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type actionRequest struct {
	TableID int    `json:"table_id"`
	HandID  int    `json:"hand_id"`
	Action  string `json:"action"`
	Amount  int64  `json:"amount"`
}

func (p *HTTPActionProcessor) SubmitAction(ctx context.Context, tableID, handID int, action string, amount int64) error {
	body, err := json.Marshal(actionRequest{TableID: tableID, HandID: handID, Action: action, Amount: amount})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/actions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusGone:
		return ErrActionRejected
	default:
		return fmt.Errorf("%w: action processor returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
}
