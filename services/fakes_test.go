package services

import (
	"context"
	"io"
	"time"

	"github.com/greenfelt/club-engine/models"
	"github.com/greenfelt/club-engine/realtime"
	"github.com/greenfelt/club-engine/repositories"
	"github.com/greenfelt/club-engine/storage"
)

// In-memory repository doubles shared by the service tests. They mimic the
// conditional-write semantics of the Postgres implementations so the state
// machine tests exercise the same typed conflicts.

type passTxRunner struct{}

func (passTxRunner) RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type memTournamentRepo struct {
	nextID      int
	tournaments map[int]*models.Tournament
}

func newMemTournamentRepo() *memTournamentRepo {
	return &memTournamentRepo{nextID: 1, tournaments: make(map[int]*models.Tournament)}
}

func (r *memTournamentRepo) add(t *models.Tournament) *models.Tournament {
	if t.ID == 0 {
		t.ID = r.nextID
		r.nextID++
	}
	r.tournaments[t.ID] = t
	return t
}

func (r *memTournamentRepo) Create(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	copied := *t
	r.add(&copied)
	t.ID = copied.ID
	return nil
}

func (r *memTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *memTournamentRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.GetByID(ctx, id)
}

func (r *memTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	out := make([]models.Tournament, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *memTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, expected, next models.TournamentStatus) error {
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != expected {
		return repositories.ErrTournamentStateChanged
	}
	t.Status = next
	return nil
}

func (r *memTournamentRepo) SetLevel(ctx context.Context, exec repositories.SQLExecutor, id, expectedIdx, nextIdx int, startedAt time.Time) error {
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != models.StatusRunning || t.CurrentLevelIdx != expectedIdx {
		return repositories.ErrTournamentStateChanged
	}
	t.CurrentLevelIdx = nextIdx
	t.LevelStartedAt = &startedAt
	return nil
}

func (r *memTournamentRepo) LoadLevels(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]models.Level, error) {
	t, ok := r.tournaments[tournamentID]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return t.Levels, nil
}

type memRegistrationRepo struct {
	nextID  int
	regs    []*models.Registration
	names   map[int]string // player id -> display name
	avatars map[int]string // player id -> avatar object key
}

func newMemRegistrationRepo() *memRegistrationRepo {
	return &memRegistrationRepo{
		nextID:  1,
		names:   make(map[int]string),
		avatars: make(map[int]string),
	}
}

func (r *memRegistrationRepo) Create(ctx context.Context, exec repositories.SQLExecutor, reg *models.Registration) error {
	for _, existing := range r.regs {
		if existing.TournamentID == reg.TournamentID &&
			existing.PlayerID == reg.PlayerID &&
			existing.Status != models.RegStatusCancelled {
			return repositories.ErrRegistrationConflict
		}
	}
	reg.ID = r.nextID
	r.nextID++
	copied := *reg
	r.regs = append(r.regs, &copied)
	return nil
}

func (r *memRegistrationRepo) FindActiveByPlayer(ctx context.Context, exec repositories.SQLExecutor, tournamentID, playerID int) (*models.Registration, error) {
	for _, reg := range r.regs {
		if reg.TournamentID == tournamentID && reg.PlayerID == playerID && reg.Status != models.RegStatusCancelled {
			copied := *reg
			return &copied, nil
		}
	}
	return nil, repositories.ErrRegistrationNotFound
}

func (r *memRegistrationRepo) FindByPaymentSession(ctx context.Context, exec repositories.SQLExecutor, sessionID string) (*models.Registration, error) {
	for _, reg := range r.regs {
		if reg.PaymentSessionID != nil && *reg.PaymentSessionID == sessionID {
			copied := *reg
			return &copied, nil
		}
	}
	return nil, repositories.ErrRegistrationNotFound
}

func (r *memRegistrationRepo) CountConfirmed(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	n := 0
	for _, reg := range r.regs {
		if reg.TournamentID == tournamentID && reg.Confirmed() {
			n++
		}
	}
	return n, nil
}

func (r *memRegistrationRepo) ListConfirmed(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Registration, error) {
	var out []*models.Registration
	for _, reg := range r.regs {
		if reg.TournamentID == tournamentID && reg.Confirmed() {
			copied := *reg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memRegistrationRepo) ListPlayers(ctx context.Context, tournamentID int) ([]repositories.PlayerRow, error) {
	var out []repositories.PlayerRow
	for _, reg := range r.regs {
		if reg.TournamentID != tournamentID {
			continue
		}
		row := repositories.PlayerRow{Registration: *reg}
		if name, ok := r.names[reg.PlayerID]; ok {
			row.DisplayName = &name
		}
		if key, ok := r.avatars[reg.PlayerID]; ok {
			row.AvatarKey = &key
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *memRegistrationRepo) AssignSeat(ctx context.Context, exec repositories.SQLExecutor, regID, tableID, seatNo int, stack int64) error {
	for _, reg := range r.regs {
		if reg.ID == regID {
			reg.TableID = &tableID
			reg.SeatNo = &seatNo
			reg.Stack = stack
			reg.Status = models.RegStatusPlaying
			return nil
		}
	}
	return repositories.ErrRegistrationNotFound
}

func (r *memRegistrationRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, regID int, expected, next models.RegistrationStatus) error {
	for _, reg := range r.regs {
		if reg.ID == regID {
			if reg.Status != expected {
				return repositories.ErrRegistrationUnchanged
			}
			reg.Status = next
			return nil
		}
	}
	return repositories.ErrRegistrationNotFound
}

func (r *memRegistrationRepo) MarkPaid(ctx context.Context, exec repositories.SQLExecutor, regID int, sessionID string) (bool, error) {
	for _, reg := range r.regs {
		if reg.ID == regID {
			// Conditional update: only a registered row may move to paid.
			if reg.Status != models.RegStatusRegistered {
				return false, nil
			}
			reg.Status = models.RegStatusPaid
			reg.PaymentSessionID = &sessionID
			return true, nil
		}
	}
	return false, repositories.ErrRegistrationNotFound
}

func (r *memRegistrationRepo) MarkEliminated(ctx context.Context, exec repositories.SQLExecutor, tournamentID, playerID int) error {
	for _, reg := range r.regs {
		if reg.TournamentID == tournamentID && reg.PlayerID == playerID && reg.Status == models.RegStatusPlaying {
			reg.Status = models.RegStatusEliminated
			return nil
		}
	}
	return repositories.ErrRegistrationNotFound
}

type fakeClubRepo struct {
	clubs   map[int]*models.Club
	members map[[2]int]bool // {clubID, userID}
}

func (f *fakeClubRepo) GetByID(ctx context.Context, id int) (*models.Club, error) {
	club, ok := f.clubs[id]
	if !ok {
		return nil, repositories.ErrClubNotFound
	}
	return club, nil
}

func (f *fakeClubRepo) IsMember(ctx context.Context, clubID, userID int) (bool, error) {
	return f.members[[2]int{clubID, userID}], nil
}

// recordingTableService records the lifecycle calls the tournament state
// machine makes so the tests can assert ordering and presence.
type recordingTableService struct {
	materialized []int // tournament ids
	blinds       []models.Level
	closedAll    []int
	openTables   []int // table ids CloseAll reports as closed
	closeAllErr  error
	left         [][2]int // {table id, player id}
	heartbeats   [][2]int
}

func (r *recordingTableService) MaterializeTables(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, regs []*models.Registration) ([]*models.Table, error) {
	r.materialized = append(r.materialized, t.ID)
	return nil, nil
}

func (r *recordingTableService) UpdateBlinds(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, level models.Level) error {
	r.blinds = append(r.blinds, level)
	return nil
}

func (r *recordingTableService) Leave(ctx context.Context, tableID, playerID int) error {
	r.left = append(r.left, [2]int{tableID, playerID})
	return nil
}

func (r *recordingTableService) CloseAll(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]int, error) {
	if r.closeAllErr != nil {
		return nil, r.closeAllErr
	}
	r.closedAll = append(r.closedAll, tournamentID)
	return r.openTables, nil
}

func (r *recordingTableService) Heartbeat(ctx context.Context, tableID, playerID int) error {
	r.heartbeats = append(r.heartbeats, [2]int{tableID, playerID})
	return nil
}

// fakeTableRepo serves the read projection; the mutation methods are never
// reached because the tests drive table lifecycle through a TableService
// double.
type fakeTableRepo struct {
	occupancy []models.TableOccupancy
}

func (f *fakeTableRepo) Create(ctx context.Context, exec repositories.SQLExecutor, table *models.Table) error {
	return nil
}

func (f *fakeTableRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Table, error) {
	return nil, repositories.ErrTableNotFound
}

func (f *fakeTableRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, includeClosed bool) ([]*models.Table, error) {
	return nil, nil
}

func (f *fakeTableRepo) UpdateBlinds(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, smallBlind, bigBlind, ante int64) error {
	return nil
}

func (f *fakeTableRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, expected, next models.TableStatus) error {
	return nil
}

func (f *fakeTableRepo) Close(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	return nil
}

func (f *fakeTableRepo) Occupancy(ctx context.Context, tournamentID int) ([]models.TableOccupancy, error) {
	return f.occupancy, nil
}

// fakeUploader resolves object keys against a fixed public base.
type fakeUploader struct {
	baseURL string
}

func (f *fakeUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	return &storage.UploadResult{Key: key, Location: f.baseURL + "/" + key}, nil
}

func (f *fakeUploader) GetPublicURL(key string) string {
	if key == "" {
		return ""
	}
	return f.baseURL + "/" + key
}

// recordingBroadcaster captures every room message so the tests can assert
// what clients were told and when.
type recordingBroadcaster struct {
	sent []struct {
		Room    string
		Message realtime.Message
	}
}

func (b *recordingBroadcaster) BroadcastToRoom(roomID string, message interface{}) {
	msg, _ := message.(realtime.Message)
	b.sent = append(b.sent, struct {
		Room    string
		Message realtime.Message
	}{Room: roomID, Message: msg})
}
