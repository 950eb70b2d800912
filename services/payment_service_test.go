package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/greenfelt/club-engine/models"
)

const webhookTestSecret = "whsec_test"

func newPaymentFixture(t *testing.T) (PaymentService, *memTournamentRepo, *memRegistrationRepo) {
	t.Helper()
	tournRepo := newMemTournamentRepo()
	regRepo := newMemRegistrationRepo()
	svc := NewPaymentService(passTxRunner{}, regRepo, tournRepo, webhookTestSecret, testLogger())
	return svc, tournRepo, regRepo
}

func paidTournament(repo *memTournamentRepo, status models.TournamentStatus) *models.Tournament {
	fee := int64(5000)
	return repo.add(&models.Tournament{
		Name:          "Friday Deepstack",
		Status:        status,
		MaxPlayers:    50,
		EntryFeeCents: &fee,
	})
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	svc, _, _ := newPaymentFixture(t)
	payload := []byte(`{"session_id":"cs_123"}`)

	if err := svc.VerifySignature(payload, sign(payload)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	bad := []string{
		"",
		"sha256=",
		"sha256=deadbeef",
		"sha256=zznothex",
		sign([]byte(`{"session_id":"cs_other"}`)),
		hex.EncodeToString([]byte("no prefix")),
	}
	for _, header := range bad {
		if err := svc.VerifySignature(payload, header); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("header %q: got %v, want ErrInvalidSignature", header, err)
		}
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	svc, tournRepo, regRepo := newPaymentFixture(t)
	tournament := paidTournament(tournRepo, models.StatusScheduled)
	playerID := 42

	event := PaymentEvent{
		SessionID:    "cs_abc",
		AmountCents:  5000,
		TournamentID: &tournament.ID,
		PlayerID:     &playerID,
	}

	outcome, err := svc.ReconcilePaidEntry(context.Background(), event)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("first delivery outcome = %q, want %q", outcome, OutcomeCreated)
	}

	// At-least-once delivery: every redelivery lands as a no-op.
	for i := 0; i < 3; i++ {
		outcome, err := svc.ReconcilePaidEntry(context.Background(), event)
		if err != nil {
			t.Fatalf("redelivery %d: %v", i, err)
		}
		if outcome != OutcomeDuplicate {
			t.Errorf("redelivery %d outcome = %q, want %q", i, outcome, OutcomeDuplicate)
		}
	}

	var paid int
	for _, reg := range regRepo.regs {
		if reg.TournamentID == tournament.ID && reg.PlayerID == playerID && reg.Status == models.RegStatusPaid {
			paid++
		}
	}
	if paid != 1 {
		t.Errorf("paid registrations = %d, want exactly 1", paid)
	}
}

func TestReconcileUpgradesExistingRegistration(t *testing.T) {
	svc, tournRepo, regRepo := newPaymentFixture(t)
	tournament := paidTournament(tournRepo, models.StatusScheduled)
	playerID := 42

	// The player registered before paying; the confirmation must upgrade
	// that row instead of inserting a second one.
	if err := regRepo.Create(context.Background(), nil, &models.Registration{
		TournamentID: tournament.ID,
		PlayerID:     playerID,
		Status:       models.RegStatusRegistered,
	}); err != nil {
		t.Fatal(err)
	}

	event := PaymentEvent{SessionID: "cs_abc", TournamentID: &tournament.ID, PlayerID: &playerID}
	outcome, err := svc.ReconcilePaidEntry(context.Background(), event)
	if err != nil {
		t.Fatalf("ReconcilePaidEntry: %v", err)
	}
	if outcome != OutcomeMarked {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeMarked)
	}
	if len(regRepo.regs) != 1 {
		t.Fatalf("registrations = %d, want 1", len(regRepo.regs))
	}
	reg := regRepo.regs[0]
	if reg.Status != models.RegStatusPaid || reg.PaymentSessionID == nil || *reg.PaymentSessionID != "cs_abc" {
		t.Errorf("registration after upgrade: %+v", reg)
	}
}

func TestReconcileRedeliveryAfterSeatingIsNoOp(t *testing.T) {
	svc, tournRepo, regRepo := newPaymentFixture(t)
	tournament := paidTournament(tournRepo, models.StatusScheduled)
	playerID := 42

	event := PaymentEvent{
		SessionID:    "cs_abc",
		AmountCents:  5000,
		TournamentID: &tournament.ID,
		PlayerID:     &playerID,
	}
	if outcome, err := svc.ReconcilePaidEntry(context.Background(), event); err != nil || outcome != OutcomeCreated {
		t.Fatalf("first delivery: outcome=%q err=%v", outcome, err)
	}

	// The tournament starts and the player is seated before the payment
	// processor redelivers the confirmation.
	tournament.Status = models.StatusRunning
	regRepo.regs[0].Status = models.RegStatusPlaying

	outcome, err := svc.ReconcilePaidEntry(context.Background(), event)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Errorf("redelivery outcome = %q, want %q", outcome, OutcomeDuplicate)
	}
	if got := regRepo.regs[0].Status; got != models.RegStatusPlaying {
		t.Errorf("status after duplicate delivery = %q, want %q", got, models.RegStatusPlaying)
	}

	// Same guarantee once the player has busted out.
	regRepo.regs[0].Status = models.RegStatusEliminated
	if outcome, err := svc.ReconcilePaidEntry(context.Background(), event); err != nil || outcome != OutcomeDuplicate {
		t.Fatalf("post-elimination redelivery: outcome=%q err=%v", outcome, err)
	}
	if got := regRepo.regs[0].Status; got != models.RegStatusEliminated {
		t.Errorf("status after post-elimination delivery = %q, want %q", got, models.RegStatusEliminated)
	}
}

func TestReconcileIgnoresUnrelatedEvents(t *testing.T) {
	svc, _, regRepo := newPaymentFixture(t)

	outcome, err := svc.ReconcilePaidEntry(context.Background(), PaymentEvent{
		SessionID:   "cs_shop_order",
		AmountCents: 1299,
	})
	if err != nil {
		t.Fatalf("ReconcilePaidEntry: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeIgnored)
	}
	if len(regRepo.regs) != 0 {
		t.Errorf("unrelated event created %d registrations", len(regRepo.regs))
	}
}

func TestReconcileRejectsTerminalTournament(t *testing.T) {
	svc, tournRepo, regRepo := newPaymentFixture(t)
	tournament := paidTournament(tournRepo, models.StatusCancelled)
	playerID := 42

	event := PaymentEvent{SessionID: "cs_late", TournamentID: &tournament.ID, PlayerID: &playerID}
	if _, err := svc.ReconcilePaidEntry(context.Background(), event); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
	if len(regRepo.regs) != 0 {
		t.Errorf("stale confirmation created %d registrations", len(regRepo.regs))
	}
}
