package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/greenfelt/club-engine/repositories"
)

// RepeatTimeoutThreshold is how many consecutive forced folds a seat
// tolerates before the player is removed from the table.
const RepeatTimeoutThreshold = 2

const sweepConcurrency = 8

// SweepFailure records one item the sweep could not process. Failures never
// abort the batch; they ride along in the report.
type SweepFailure struct {
	HandID   int    `json:"hand_id,omitempty"`
	TableID  int    `json:"table_id,omitempty"`
	PlayerID int    `json:"player_id,omitempty"`
	Reason   string `json:"reason"`
}

// SweepReport summarizes one sweep invocation.
type SweepReport struct {
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	Duration       time.Duration  `json:"duration"`
	FoldsForced    int            `json:"folds_forced"`
	FoldsRejected  int            `json:"folds_rejected"`
	PlayersRemoved int            `json:"players_removed"`
	Failures       []SweepFailure `json:"failures,omitempty"`
}

// SweepService is the timeout and abandonment monitor. It holds no timer of
// its own: an external scheduler invokes SweepTimeouts on a short interval.
type SweepService interface {
	SweepTimeouts(ctx context.Context) (*SweepReport, error)
}

type sweepService struct {
	handRepo     repositories.HandRepository
	seatRepo     repositories.SeatRepository
	tableService TableService
	processor    ActionProcessor
	logger       *slog.Logger
}

func NewSweepService(
	handRepo repositories.HandRepository,
	seatRepo repositories.SeatRepository,
	tableService TableService,
	processor ActionProcessor,
	logger *slog.Logger,
) SweepService {
	return &sweepService{
		handRepo:     handRepo,
		seatRepo:     seatRepo,
		tableService: tableService,
		processor:    processor,
		logger:       logger,
	}
}

func (s *sweepService) SweepTimeouts(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	var mu sync.Mutex

	s.sweepStuckHands(ctx, report, &mu)
	s.sweepRepeatOffenders(ctx, report, &mu)

	report.Duration = time.Since(report.StartedAt)
	s.logger.Info("timeout sweep finished",
		slog.String("run_id", report.RunID),
		slog.Int("folds_forced", report.FoldsForced),
		slog.Int("folds_rejected", report.FoldsRejected),
		slog.Int("players_removed", report.PlayersRemoved),
		slog.Int("failures", len(report.Failures)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// sweepStuckHands forces a fold on behalf of every player whose action
// deadline has elapsed. The action processor owns hand progression: when a
// genuine action raced ahead of us it rejects the stale fold, which is
// success from the sweep's perspective and is never retried.
func (s *sweepService) sweepStuckHands(ctx context.Context, report *SweepReport, mu *sync.Mutex) {
	if s.processor == nil {
		// No hand engine configured; only the repeat-offender pass runs.
		return
	}
	overdue, err := s.handRepo.ListOverdue(ctx, time.Now().UTC())
	if err != nil {
		mu.Lock()
		report.Failures = append(report.Failures, SweepFailure{Reason: fmt.Sprintf("list overdue hands: %v", err)})
		mu.Unlock()
		return
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, hand := range overdue {
		hand := hand
		g.Go(func() error {
			err := s.processor.SubmitAction(gCtx, hand.TableID, hand.HandID, ActionFold, 0)
			switch {
			case err == nil:
				if incErr := s.seatRepo.IncrementTimeout(gCtx, nil, hand.TableID, hand.SeatNo); incErr != nil {
					s.logger.Warn("failed to bump timeout counter",
						slog.Int("table_id", hand.TableID), slog.Int("seat_no", hand.SeatNo), slog.Any("error", incErr))
				}
				mu.Lock()
				report.FoldsForced++
				mu.Unlock()
			case errors.Is(err, ErrActionRejected):
				// The hand already moved on; the player's own action won.
				mu.Lock()
				report.FoldsRejected++
				mu.Unlock()
			default:
				mu.Lock()
				report.Failures = append(report.Failures, SweepFailure{
					HandID:   hand.HandID,
					TableID:  hand.TableID,
					PlayerID: hand.PlayerID,
					Reason:   err.Error(),
				})
				mu.Unlock()
			}
			// Individual failures stay in the report; the group never
			// cancels the batch.
			return nil
		})
	}
	_ = g.Wait()
}

// sweepRepeatOffenders removes players whose consecutive-timeout counter
// crossed the threshold. Removal is the full leave path: seat vacated,
// stack forfeited, seat_change broadcast.
func (s *sweepService) sweepRepeatOffenders(ctx context.Context, report *SweepReport, mu *sync.Mutex) {
	offenders, err := s.seatRepo.ListRepeatOffenders(ctx, RepeatTimeoutThreshold)
	if err != nil {
		mu.Lock()
		report.Failures = append(report.Failures, SweepFailure{Reason: fmt.Sprintf("list repeat offenders: %v", err)})
		mu.Unlock()
		return
	}

	for _, offender := range offenders {
		if err := s.tableService.Leave(ctx, offender.TableID, offender.PlayerID); err != nil {
			mu.Lock()
			report.Failures = append(report.Failures, SweepFailure{
				TableID:  offender.TableID,
				PlayerID: offender.PlayerID,
				Reason:   err.Error(),
			})
			mu.Unlock()
			continue
		}
		s.logger.Info("removed repeat timeout offender",
			slog.Int("table_id", offender.TableID),
			slog.Int("player_id", offender.PlayerID),
			slog.Int("timeout_count", offender.TimeoutCount))
		mu.Lock()
		report.PlayersRemoved++
		mu.Unlock()
	}
}
