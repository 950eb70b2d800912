package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/greenfelt/club-engine/models"
	"github.com/greenfelt/club-engine/repositories"
)

// ReconcileOutcome tells the webhook handler what happened; every outcome
// is a 2xx so the payment processor stops redelivering.
type ReconcileOutcome string

const (
	OutcomeCreated   ReconcileOutcome = "created"
	OutcomeMarked    ReconcileOutcome = "marked_paid"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	OutcomeIgnored   ReconcileOutcome = "ignored"
)

// PaymentEvent is the decoded payment-confirmation webhook. Tournament and
// player arrive as metadata and are absent on unrelated payment events.
type PaymentEvent struct {
	SessionID    string `json:"session_id"`
	AmountCents  int64  `json:"amount_cents"`
	TournamentID *int   `json:"tournament_id"`
	PlayerID     *int   `json:"player_id"`
}

type PaymentService interface {
	// VerifySignature checks the webhook HMAC before any metadata is
	// trusted. Failure means reject with no state change.
	VerifySignature(payload []byte, signatureHeader string) error
	// ReconcilePaidEntry converts a payment confirmation into a paid
	// registration, idempotently under at-least-once delivery.
	ReconcilePaidEntry(ctx context.Context, event PaymentEvent) (ReconcileOutcome, error)
}

type paymentService struct {
	txRunner  repositories.TxRunner
	regRepo   repositories.RegistrationRepository
	tournRepo repositories.TournamentRepository
	secret    []byte
	logger    *slog.Logger
}

func NewPaymentService(
	txRunner repositories.TxRunner,
	regRepo repositories.RegistrationRepository,
	tournRepo repositories.TournamentRepository,
	webhookSecret string,
	logger *slog.Logger,
) PaymentService {
	return &paymentService{
		txRunner:  txRunner,
		regRepo:   regRepo,
		tournRepo: tournRepo,
		secret:    []byte(webhookSecret),
		logger:    logger,
	}
}

// VerifySignature expects "sha256=<hex hmac of payload>".
func (s *paymentService) VerifySignature(payload []byte, signatureHeader string) error {
	provided, ok := strings.CutPrefix(signatureHeader, "sha256=")
	if !ok || provided == "" {
		return ErrInvalidSignature
	}
	providedMAC, err := hex.DecodeString(provided)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	if !hmac.Equal(providedMAC, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

func (s *paymentService) ReconcilePaidEntry(ctx context.Context, event PaymentEvent) (ReconcileOutcome, error) {
	// The channel carries unrelated payment events too; anything without
	// tournament-entry metadata is accepted and ignored, not an error.
	if event.SessionID == "" || event.TournamentID == nil || event.PlayerID == nil {
		s.logger.Debug("ignoring payment event without tournament metadata",
			slog.String("session_id", event.SessionID))
		return OutcomeIgnored, nil
	}

	var outcome ReconcileOutcome
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournRepo.GetByIDForUpdate(ctx, exec, *event.TournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if t.Terminal() {
			// Stale confirmation for a finished event: reject without
			// mutating anything. Non-fatal by contract.
			return fmt.Errorf("%w: tournament %d is %s", ErrInvalidState, t.ID, t.Status)
		}

		// First, the idempotency key: has this session already produced a
		// registration?
		existing, err := s.regRepo.FindByPaymentSession(ctx, exec, event.SessionID)
		switch {
		case err == nil:
			// The session already produced a row. Anything past
			// registered (paid, playing, eliminated) means this delivery
			// is stale; the registration must never regress.
			if existing.Status != models.RegStatusRegistered {
				outcome = OutcomeDuplicate
				return nil
			}
			changed, err := s.regRepo.MarkPaid(ctx, exec, existing.ID, event.SessionID)
			if err != nil {
				return err
			}
			if changed {
				outcome = OutcomeMarked
			} else {
				outcome = OutcomeDuplicate
			}
			return nil
		case !errors.Is(err, repositories.ErrRegistrationNotFound):
			return err
		}

		// No row keyed by this session. The player may have registered
		// before paying; upgrade that row instead of inserting a second.
		if reg, err := s.regRepo.FindActiveByPlayer(ctx, exec, *event.TournamentID, *event.PlayerID); err == nil {
			if reg.Status != models.RegStatusRegistered {
				outcome = OutcomeDuplicate
				return nil
			}
			changed, err := s.regRepo.MarkPaid(ctx, exec, reg.ID, event.SessionID)
			if err != nil {
				return err
			}
			if changed {
				outcome = OutcomeMarked
			} else {
				outcome = OutcomeDuplicate
			}
			return nil
		} else if !errors.Is(err, repositories.ErrRegistrationNotFound) {
			return err
		}

		sessionID := event.SessionID
		reg := &models.Registration{
			TournamentID:     *event.TournamentID,
			PlayerID:         *event.PlayerID,
			Status:           models.RegStatusPaid,
			PaymentSessionID: &sessionID,
		}
		if err := s.regRepo.Create(ctx, exec, reg); err != nil {
			if errors.Is(err, repositories.ErrRegistrationConflict) {
				// Concurrent delivery of the same confirmation; the other
				// writer won.
				outcome = OutcomeDuplicate
				return nil
			}
			return err
		}
		outcome = OutcomeCreated
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("paid entry reconciled",
		slog.String("session_id", event.SessionID),
		slog.Int("tournament_id", *event.TournamentID),
		slog.Int("player_id", *event.PlayerID),
		slog.String("outcome", string(outcome)))
	return outcome, nil
}
