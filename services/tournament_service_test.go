package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/greenfelt/club-engine/models"
	"github.com/greenfelt/club-engine/realtime"
)

type tournamentFixture struct {
	svc       TournamentService
	tournRepo *memTournamentRepo
	regRepo   *memRegistrationRepo
	tableRepo *fakeTableRepo
	clubRepo  *fakeClubRepo
	tables    *recordingTableService
	broadcast *recordingBroadcaster
}

func newTournamentFixture(t *testing.T) *tournamentFixture {
	t.Helper()
	f := &tournamentFixture{
		tournRepo: newMemTournamentRepo(),
		regRepo:   newMemRegistrationRepo(),
		tableRepo: &fakeTableRepo{},
		clubRepo: &fakeClubRepo{
			clubs:   make(map[int]*models.Club),
			members: make(map[[2]int]bool),
		},
		tables:    &recordingTableService{},
		broadcast: &recordingBroadcaster{},
	}
	f.svc = NewTournamentService(
		passTxRunner{},
		f.tournRepo,
		f.regRepo,
		f.tableRepo,
		f.clubRepo,
		f.tables,
		nil,
		&fakeUploader{baseURL: "https://cdn.example.test"},
		f.broadcast,
		testLogger(),
	)
	return f
}

func standardLevels() []LevelInput {
	return []LevelInput{
		{SmallBlind: 25, BigBlind: 50, DurationSeconds: 1200},
		{SmallBlind: 50, BigBlind: 100, DurationSeconds: 1200},
		{IsBreak: true, DurationSeconds: 600},
		{SmallBlind: 100, BigBlind: 200, Ante: 200, DurationSeconds: 1200},
	}
}

func validInput() CreateTournamentInput {
	return CreateTournamentInput{
		Name:            "Tuesday Freezeout",
		MaxPlayers:      27,
		PlayersPerTable: 9,
		StartingStack:   20000,
		LateRegLevel:    1,
		Levels:          standardLevels(),
	}
}

func TestCreateTournamentValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateTournamentInput)
		role    models.UserRole
		wantErr error
	}{
		{
			name:   "valid free tournament by club admin",
			mutate: func(in *CreateTournamentInput) {},
			role:   models.RoleClubAdmin,
		},
		{
			name:    "player cannot create",
			mutate:  func(in *CreateTournamentInput) {},
			role:    models.RolePlayer,
			wantErr: ErrForbidden,
		},
		{
			name: "club admin cannot create paid",
			mutate: func(in *CreateTournamentInput) {
				fee := int64(5000)
				in.EntryFeeCents = &fee
			},
			role:    models.RoleClubAdmin,
			wantErr: ErrForbidden,
		},
		{
			name: "paid without start time",
			mutate: func(in *CreateTournamentInput) {
				fee := int64(5000)
				in.EntryFeeCents = &fee
			},
			role:    models.RoleAppAdmin,
			wantErr: ErrTournamentStartTimeNeeded,
		},
		{
			name:    "missing name",
			mutate:  func(in *CreateTournamentInput) { in.Name = "" },
			role:    models.RoleAppAdmin,
			wantErr: ErrTournamentNameRequired,
		},
		{
			name:    "capacity below minimum",
			mutate:  func(in *CreateTournamentInput) { in.MaxPlayers = 1 },
			role:    models.RoleAppAdmin,
			wantErr: ErrTournamentInvalidCapacity,
		},
		{
			name:    "too many seats per table",
			mutate:  func(in *CreateTournamentInput) { in.PlayersPerTable = 11 },
			role:    models.RoleAppAdmin,
			wantErr: ErrTournamentInvalidCapacity,
		},
		{
			name:    "empty schedule",
			mutate:  func(in *CreateTournamentInput) { in.Levels = nil },
			role:    models.RoleAppAdmin,
			wantErr: ErrTournamentInvalidSchedule,
		},
		{
			name: "big blind below small blind",
			mutate: func(in *CreateTournamentInput) {
				in.Levels[1].BigBlind = 25
			},
			role:    models.RoleAppAdmin,
			wantErr: ErrTournamentInvalidSchedule,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTournamentFixture(t)
			input := validInput()
			tc.mutate(&input)

			created, err := f.svc.CreateTournament(context.Background(), 1, tc.role, input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateTournament: %v", err)
			}
			if created.Status != models.StatusRegistering {
				t.Errorf("status = %q, want %q", created.Status, models.StatusRegistering)
			}
			if len(created.Levels) != len(input.Levels) {
				t.Errorf("levels = %d, want %d", len(created.Levels), len(input.Levels))
			}
		})
	}
}

func TestCreatePaidTournamentOpensScheduled(t *testing.T) {
	f := newTournamentFixture(t)
	input := validInput()
	fee := int64(5000)
	start := time.Now().Add(48 * time.Hour)
	input.EntryFeeCents = &fee
	input.StartTime = &start

	created, err := f.svc.CreateTournament(context.Background(), 1, models.RoleAppAdmin, input)
	if err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}
	if created.Status != models.StatusScheduled {
		t.Errorf("status = %q, want %q", created.Status, models.StatusScheduled)
	}
}

func openTournament(t *testing.T, f *tournamentFixture, maxPlayers int) *models.Tournament {
	t.Helper()
	input := validInput()
	input.MaxPlayers = maxPlayers
	created, err := f.svc.CreateTournament(context.Background(), 1, models.RoleAppAdmin, input)
	if err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}
	return created
}

func TestRegisterPlayer(t *testing.T) {
	f := newTournamentFixture(t)
	tournament := openTournament(t, f, 2)

	reg, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, 10)
	if err != nil {
		t.Fatalf("RegisterPlayer: %v", err)
	}
	if reg.Status != models.RegStatusRegistered {
		t.Errorf("status = %q, want %q", reg.Status, models.RegStatusRegistered)
	}

	if _, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, 10); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second register: got %v, want ErrAlreadyRegistered", err)
	}

	if _, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, 11); err != nil {
		t.Fatalf("RegisterPlayer: %v", err)
	}
	if _, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, 12); !errors.Is(err, ErrTournamentFull) {
		t.Errorf("register past capacity: got %v, want ErrTournamentFull", err)
	}

	if _, err := f.svc.RegisterPlayer(context.Background(), 999, 10); !errors.Is(err, ErrTournamentNotFound) {
		t.Errorf("unknown tournament: got %v, want ErrTournamentNotFound", err)
	}
}

func TestRegisterRequiresClubMembership(t *testing.T) {
	f := newTournamentFixture(t)
	f.clubRepo.clubs[5] = &models.Club{ID: 5, Name: "Greenfelt"}
	f.clubRepo.members[[2]int{5, 10}] = true

	input := validInput()
	clubID := 5
	input.ClubID = &clubID
	tournament, err := f.svc.CreateTournament(context.Background(), 1, models.RoleAppAdmin, input)
	if err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}

	if _, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, 10); err != nil {
		t.Errorf("member register: %v", err)
	}
	if _, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, 11); !errors.Is(err, ErrNotClubMember) {
		t.Errorf("non-member register: got %v, want ErrNotClubMember", err)
	}
}

func TestLateRegistrationWindow(t *testing.T) {
	// The cutoff is inclusive: with late_reg_level 1, registration stays
	// open through level index 1 and closes at index 2.
	f := newTournamentFixture(t)
	tournament := openTournament(t, f, 27)

	stored := f.tournRepo.tournaments[tournament.ID]
	stored.Status = models.StatusRunning
	stored.CurrentLevelIdx = 1

	if _, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, 10); err != nil {
		t.Errorf("register at cutoff level: %v", err)
	}

	stored.CurrentLevelIdx = 2
	if _, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, 11); !errors.Is(err, ErrRegistrationClosed) {
		t.Errorf("register past cutoff: got %v, want ErrRegistrationClosed", err)
	}
}

func TestStartTournament(t *testing.T) {
	f := newTournamentFixture(t)
	tournament := openTournament(t, f, 27)

	if err := f.svc.StartTournament(context.Background(), tournament.ID, 1, models.RoleClubAdmin); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("start with no field: got %v, want ErrNotEnoughPlayers", err)
	}

	for playerID := 10; playerID < 13; playerID++ {
		if _, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, playerID); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.svc.StartTournament(context.Background(), tournament.ID, 99, models.RolePlayer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("start by stranger: got %v, want ErrForbidden", err)
	}

	if err := f.svc.StartTournament(context.Background(), tournament.ID, 1, models.RoleClubAdmin); err != nil {
		t.Fatalf("StartTournament: %v", err)
	}

	stored := f.tournRepo.tournaments[tournament.ID]
	if stored.Status != models.StatusRunning {
		t.Errorf("status = %q, want %q", stored.Status, models.StatusRunning)
	}
	if stored.CurrentLevelIdx != 0 {
		t.Errorf("level idx = %d, want 0", stored.CurrentLevelIdx)
	}
	if stored.LevelStartedAt == nil {
		t.Error("level_started_at not set")
	}
	if len(f.tables.materialized) != 1 || f.tables.materialized[0] != tournament.ID {
		t.Errorf("materialized = %v, want [%d]", f.tables.materialized, tournament.ID)
	}

	if err := f.svc.StartTournament(context.Background(), tournament.ID, 1, models.RoleClubAdmin); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second start: got %v, want ErrInvalidState", err)
	}
}

func startedTournament(t *testing.T, f *tournamentFixture) *models.Tournament {
	t.Helper()
	tournament := openTournament(t, f, 27)
	for playerID := 10; playerID < 13; playerID++ {
		if _, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, playerID); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.svc.StartTournament(context.Background(), tournament.ID, 1, models.RoleAppAdmin); err != nil {
		t.Fatal(err)
	}
	return tournament
}

func TestAdvanceLevelWalksSchedule(t *testing.T) {
	f := newTournamentFixture(t)
	tournament := startedTournament(t, f)
	stored := f.tournRepo.tournaments[tournament.ID]

	// The schedule has four entries: three advances reach the last one.
	wantIdx := []int{1, 2, 3}
	for _, want := range wantIdx {
		level, err := f.svc.AdvanceLevel(context.Background(), tournament.ID, 1, models.RoleAppAdmin)
		if err != nil {
			t.Fatalf("AdvanceLevel to %d: %v", want, err)
		}
		if level.Idx != want {
			t.Fatalf("level idx = %d, want %d", level.Idx, want)
		}
		if stored.CurrentLevelIdx != want {
			t.Fatalf("stored idx = %d, want %d", stored.CurrentLevelIdx, want)
		}
	}

	if _, err := f.svc.AdvanceLevel(context.Background(), tournament.ID, 1, models.RoleAppAdmin); !errors.Is(err, ErrScheduleExhausted) {
		t.Fatalf("advance past last level: got %v, want ErrScheduleExhausted", err)
	}
	if stored.CurrentLevelIdx != 3 {
		t.Errorf("exhausted advance moved idx to %d", stored.CurrentLevelIdx)
	}

	// Every advance pushed its blinds to the tables, breaks included.
	if len(f.tables.blinds) != len(wantIdx) {
		t.Fatalf("blind updates = %d, want %d", len(f.tables.blinds), len(wantIdx))
	}
	if last := f.tables.blinds[len(f.tables.blinds)-1]; last.BigBlind != 200 {
		t.Errorf("last pushed big blind = %d, want 200", last.BigBlind)
	}
}

func TestAdvanceLevelRequiresRunning(t *testing.T) {
	f := newTournamentFixture(t)
	tournament := openTournament(t, f, 27)

	if _, err := f.svc.AdvanceLevel(context.Background(), tournament.ID, 1, models.RoleAppAdmin); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("advance before start: got %v, want ErrInvalidState", err)
	}
}

func TestCompleteTournament(t *testing.T) {
	f := newTournamentFixture(t)
	tournament := startedTournament(t, f)

	if err := f.svc.CompleteTournament(context.Background(), tournament.ID, 1, models.RoleAppAdmin); err != nil {
		t.Fatalf("CompleteTournament: %v", err)
	}
	if got := f.tournRepo.tournaments[tournament.ID].Status; got != models.StatusComplete {
		t.Errorf("status = %q, want %q", got, models.StatusComplete)
	}
	if len(f.tables.closedAll) != 1 {
		t.Errorf("tables closed %d times, want 1", len(f.tables.closedAll))
	}

	if err := f.svc.CompleteTournament(context.Background(), tournament.ID, 1, models.RoleAppAdmin); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second complete: got %v, want ErrInvalidState", err)
	}
}

func TestCancelRunningTournamentClosesTables(t *testing.T) {
	f := newTournamentFixture(t)
	tournament := startedTournament(t, f)

	if err := f.svc.CancelTournament(context.Background(), tournament.ID, 1, models.RoleAppAdmin); err != nil {
		t.Fatalf("CancelTournament: %v", err)
	}
	if got := f.tournRepo.tournaments[tournament.ID].Status; got != models.StatusCancelled {
		t.Errorf("status = %q, want %q", got, models.StatusCancelled)
	}
	if len(f.tables.closedAll) != 1 {
		t.Errorf("tables closed %d times, want 1", len(f.tables.closedAll))
	}
}

func closedTableBroadcasts(b *recordingBroadcaster) map[string]realtime.SeatChangeEvent {
	out := make(map[string]realtime.SeatChangeEvent)
	for _, s := range b.sent {
		if ev, ok := s.Message.Payload.(realtime.SeatChangeEvent); ok && ev.Action == realtime.SeatActionTableClosed {
			out[s.Room] = ev
		}
	}
	return out
}

func TestCancelBroadcastsClosuresAfterCommit(t *testing.T) {
	f := newTournamentFixture(t)
	tournament := startedTournament(t, f)
	f.tables.openTables = []int{41, 42}

	if err := f.svc.CancelTournament(context.Background(), tournament.ID, 1, models.RoleAppAdmin); err != nil {
		t.Fatalf("CancelTournament: %v", err)
	}

	closures := closedTableBroadcasts(f.broadcast)
	if len(closures) != 2 {
		t.Fatalf("table_closed broadcasts = %d, want 2", len(closures))
	}
	for _, tableID := range []int{41, 42} {
		ev, ok := closures[realtime.TableRoom(tableID)]
		if !ok {
			t.Errorf("no table_closed broadcast for table %d", tableID)
			continue
		}
		if ev.TableID != tableID {
			t.Errorf("broadcast table id = %d, want %d", ev.TableID, tableID)
		}
	}
}

func TestFailedCancelBroadcastsNothing(t *testing.T) {
	f := newTournamentFixture(t)
	tournament := startedTournament(t, f)
	f.tables.openTables = []int{41, 42}
	f.tables.closeAllErr = errors.New("deadlock detected")

	if err := f.svc.CancelTournament(context.Background(), tournament.ID, 1, models.RoleAppAdmin); err == nil {
		t.Fatal("CancelTournament succeeded despite table closing failure")
	}
	if closures := closedTableBroadcasts(f.broadcast); len(closures) != 0 {
		t.Errorf("clients were told of closures that never committed: %v", closures)
	}
}

func TestCancelBeforeStartLeavesTablesAlone(t *testing.T) {
	f := newTournamentFixture(t)
	tournament := openTournament(t, f, 27)

	if err := f.svc.CancelTournament(context.Background(), tournament.ID, 1, models.RoleAppAdmin); err != nil {
		t.Fatalf("CancelTournament: %v", err)
	}
	if len(f.tables.closedAll) != 0 {
		t.Errorf("cancel of an unstarted tournament touched tables: %v", f.tables.closedAll)
	}

	if err := f.svc.CancelTournament(context.Background(), tournament.ID, 1, models.RoleAppAdmin); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second cancel: got %v, want ErrInvalidState", err)
	}
}

func TestTournamentStateResolvesPlayerProfiles(t *testing.T) {
	f := newTournamentFixture(t)
	tournament := openTournament(t, f, 27)
	for playerID := 10; playerID < 12; playerID++ {
		if _, err := f.svc.RegisterPlayer(context.Background(), tournament.ID, playerID); err != nil {
			t.Fatal(err)
		}
	}
	f.regRepo.names[10] = "Ada"
	f.regRepo.avatars[10] = "avatars/10.png"
	f.tableRepo.occupancy = []models.TableOccupancy{{TableID: 5, Capacity: 9, Occupied: 2}}

	view, err := f.svc.GetTournamentState(context.Background(), tournament.ID, 10)
	if err != nil {
		t.Fatalf("GetTournamentState: %v", err)
	}
	if len(view.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(view.Players))
	}

	byID := make(map[int]PlayerView, len(view.Players))
	for _, pv := range view.Players {
		byID[pv.PlayerID] = pv
	}
	withProfile := byID[10]
	if withProfile.DisplayName != "Ada" {
		t.Errorf("display name = %q, want %q", withProfile.DisplayName, "Ada")
	}
	if withProfile.AvatarURL == nil || *withProfile.AvatarURL != "https://cdn.example.test/avatars/10.png" {
		t.Errorf("avatar url = %v, want resolved delivery URL", withProfile.AvatarURL)
	}
	withoutProfile := byID[11]
	if withoutProfile.DisplayName != "Player 11" {
		t.Errorf("placeholder name = %q, want %q", withoutProfile.DisplayName, "Player 11")
	}
	if withoutProfile.AvatarURL != nil {
		t.Errorf("avatar url for keyless player = %q, want nil", *withoutProfile.AvatarURL)
	}

	if len(view.Tables) != 1 || view.Tables[0].TableID != 5 {
		t.Errorf("occupancy = %+v, want table 5", view.Tables)
	}
}
