package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
)

// memDB is an in-memory stand-in for Postgres. Transactions are serialized and
// rolled back by restoring a snapshot; row locks are recorded in lockLog so
// tests can assert acquisition order.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   memState
	seq  int

	lockLog  []string
	failures map[string][]error
	txCount  int
}

type userSpec struct {
	userID int
	spec   models.Specialization
}

type memState struct {
	tournaments  map[int]models.Tournament
	participants map[int][]models.TournamentParticipant
	sessions     map[int]models.Session
	rankings     map[int][]models.TournamentRanking
	frozen       map[int]bool
	progress     map[userSpec]models.Progress
	licenses     map[int]models.License
	progressions []models.LicenseProgression
	records      []models.RewardDistributionRecord
	ledger       []models.CreditLedgerEntry
	assessments  map[int]models.SkillAssessment
	users        map[int]models.User
}

func newMemDB() *memDB {
	return &memDB{
		st: memState{
			tournaments:  map[int]models.Tournament{},
			participants: map[int][]models.TournamentParticipant{},
			sessions:     map[int]models.Session{},
			rankings:     map[int][]models.TournamentRanking{},
			frozen:       map[int]bool{},
			progress:     map[userSpec]models.Progress{},
			licenses:     map[int]models.License{},
			assessments:  map[int]models.SkillAssessment{},
			users:        map[int]models.User{},
		},
		failures: map[string][]error{},
	}
}

func (s memState) clone() memState {
	out := memState{
		tournaments:  cloneMap(s.tournaments),
		participants: map[int][]models.TournamentParticipant{},
		sessions:     map[int]models.Session{},
		rankings:     map[int][]models.TournamentRanking{},
		frozen:       cloneMap(s.frozen),
		progress:     cloneMap(s.progress),
		licenses:     cloneMap(s.licenses),
		progressions: slices.Clone(s.progressions),
		records:      slices.Clone(s.records),
		ledger:       slices.Clone(s.ledger),
		assessments:  cloneMap(s.assessments),
		users:        cloneMap(s.users),
	}
	for k, v := range s.participants {
		out.participants[k] = slices.Clone(v)
	}
	for k, v := range s.sessions {
		out.sessions[k] = cloneSession(v)
	}
	for k, v := range s.rankings {
		out.rankings[k] = slices.Clone(v)
	}
	return out
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSession(s models.Session) models.Session {
	s.ParticipantIDs = slices.Clone(s.ParticipantIDs)
	s.Results = slices.Clone(s.Results)
	return s
}

func (db *memDB) nextID() int {
	db.seq++
	return db.seq
}

// failNext makes the next len(errs) calls of op fail with the given errors.
func (db *memDB) failNext(op string, errs ...error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[op] = append(db.failures[op], errs...)
}

// check must be called with db.mu held.
func (db *memDB) check(op string) error {
	queue := db.failures[op]
	if len(queue) == 0 {
		return nil
	}
	db.failures[op] = queue[1:]
	return queue[0]
}

// lock records a row lock; must be called with db.mu held.
func (db *memDB) lock(exec repositories.SQLExecutor, row string) error {
	if _, ok := exec.(*memTx); !ok {
		return fmt.Errorf("row lock %s requested outside a transaction", row)
	}
	db.lockLog = append(db.lockLog, row)
	return nil
}

func (db *memDB) takeLocks() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := db.lockLog
	db.lockLog = nil
	return out
}

type memTx struct{}

var errRawSQL = errors.New("raw SQL is not supported by the in-memory store")

func (*memTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errRawSQL
}

func (*memTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errRawSQL
}

func (*memTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, exec repositories.SQLExecutor) error) (err error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	db.txCount++
	snapshot := db.st.clone()
	db.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			db.mu.Lock()
			db.st = snapshot
			db.mu.Unlock()
			panic(p)
		}
		if err != nil {
			db.mu.Lock()
			db.st = snapshot
			db.mu.Unlock()
		}
	}()
	return fn(ctx, &memTx{})
}

// --- seed helpers ---

func (db *memDB) addUser(id int, role models.UserRole, since time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.users[id] = models.User{ID: id, Nickname: fmt.Sprintf("user%d", id), Role: role, CreatedAt: since}
}

func (db *memDB) addProgress(userID int, spec models.Specialization, level int, xp int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.progress[userSpec{userID, spec}] = models.Progress{
		ID: db.nextID(), UserID: userID, Specialization: spec, CurrentLevel: level, Experience: xp,
	}
}

func (db *memDB) addLicense(userID int, spec models.Specialization, level, maxAchieved int) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	id := db.nextID()
	db.st.licenses[id] = models.License{
		ID: id, UserID: userID, Specialization: spec, CurrentLevel: level, MaxAchievedLevel: maxAchieved, IsActive: true,
	}
	return id
}

func (db *memDB) progressOf(userID int, spec models.Specialization) models.Progress {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.progress[userSpec{userID, spec}]
}

func (db *memDB) licenseOf(userID int, spec models.Specialization) models.License {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, l := range db.st.licenses {
		if l.UserID == userID && l.Specialization == spec {
			return l
		}
	}
	return models.License{}
}

func (db *memDB) progressionsOf(userID int) []models.LicenseProgression {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.LicenseProgression
	for _, p := range db.st.progressions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

func (db *memDB) tournament(id int) models.Tournament {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.tournaments[id]
}

func (db *memDB) sessionsOf(tournamentID int) []models.Session {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.sortedSessions(func(s models.Session) bool { return s.TournamentID == tournamentID })
}

func (db *memDB) rewardRecords(tournamentID int) []models.RewardDistributionRecord {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.RewardDistributionRecord
	for _, r := range db.st.records {
		if r.TournamentID == tournamentID {
			out = append(out, r)
		}
	}
	return out
}

func (db *memDB) ledgerOf(userID int) []models.CreditLedgerEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.CreditLedgerEntry
	for _, e := range db.st.ledger {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// sortedSessions must be called with db.mu held.
func (db *memDB) sortedSessions(keep func(models.Session) bool) []models.Session {
	out := []models.Session{}
	for _, s := range db.st.sessions {
		if keep(s) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		if a.Phase != b.Phase {
			return a.Phase < b.Phase
		}
		return a.SeedSlot < b.SeedSlot
	})
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- repositories ---

type memTournamentRepo struct{ db *memDB }

func (r memTournamentRepo) Create(_ context.Context, _ repositories.SQLExecutor, t *models.Tournament) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("tournament.Create"); err != nil {
		return err
	}
	if _, ok := r.db.st.users[t.OrganizerID]; !ok {
		return repositories.ErrTournamentInvalidOrg
	}
	t.ID = r.db.nextID()
	t.CreatedAt = time.Now().UTC()
	stored := *t
	stored.Participants, stored.Sessions = nil, nil
	r.db.st.tournaments[t.ID] = stored
	return nil
}

func (r memTournamentRepo) get(id int) (*models.Tournament, error) {
	t, ok := r.db.st.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return &t, nil
}

func (r memTournamentRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("tournament.GetByID"); err != nil {
		return nil, err
	}
	return r.get(id)
}

func (r memTournamentRepo) GetForUpdate(_ context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("tournament.GetForUpdate"); err != nil {
		return nil, err
	}
	if err := r.db.lock(exec, fmt.Sprintf("tournament:%d", id)); err != nil {
		return nil, err
	}
	return r.get(id)
}

func (r memTournamentRepo) ListByStatus(_ context.Context, _ repositories.SQLExecutor, status models.TournamentStatus) ([]*models.Tournament, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []*models.Tournament{}
	for _, t := range r.db.st.tournaments {
		if t.Status == status {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTournamentRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, from, to models.TournamentStatus, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("tournament.UpdateStatus"); err != nil {
		return err
	}
	t, ok := r.db.st.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = to
	switch to {
	case models.StatusInProgress:
		if t.StartDate == nil {
			t.StartDate = &at
		}
	case models.StatusCompleted:
		t.CompletedAt = &at
	case models.StatusRewardsDistributed:
		t.RewardsDistributedAt = &at
	}
	r.db.st.tournaments[id] = t
	return nil
}

type memParticipantRepo struct{ db *memDB }

func (r memParticipantRepo) Add(_ context.Context, _ repositories.SQLExecutor, p *models.TournamentParticipant) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.st.tournaments[p.TournamentID]; !ok {
		return repositories.ErrParticipantTournamentInvalid
	}
	list := r.db.st.participants[p.TournamentID]
	for _, existing := range list {
		if existing.UserID == p.UserID {
			return repositories.ErrParticipantAlreadyRegistered
		}
	}
	p.Seed = len(list) + 1
	p.CreatedAt = time.Now().UTC()
	r.db.st.participants[p.TournamentID] = append(list, *p)
	return nil
}

func (r memParticipantRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.TournamentParticipant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := slices.Clone(r.db.st.participants[tournamentID])
	sort.Slice(out, func(i, j int) bool { return out[i].Seed < out[j].Seed })
	if out == nil {
		out = []models.TournamentParticipant{}
	}
	return out, nil
}

func (r memParticipantRepo) Count(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.st.participants[tournamentID]), nil
}

func (r memParticipantRepo) SetGroupLabel(_ context.Context, _ repositories.SQLExecutor, tournamentID, userID int, label string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	list := r.db.st.participants[tournamentID]
	for i := range list {
		if list[i].UserID == userID {
			l := label
			list[i].GroupLabel = &l
			return nil
		}
	}
	return repositories.ErrParticipantTournamentInvalid
}

// addParticipants registers users directly, bypassing the service.
func (db *memDB) addParticipants(tournamentID int, userIDs ...int) {
	repo := memParticipantRepo{db}
	for _, id := range userIDs {
		if err := repo.Add(context.Background(), nil, &models.TournamentParticipant{TournamentID: tournamentID, UserID: id}); err != nil {
			panic(err)
		}
	}
}

type memSessionRepo struct{ db *memDB }

func (r memSessionRepo) Create(_ context.Context, _ repositories.SQLExecutor, s *models.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("session.Create"); err != nil {
		return err
	}
	if _, ok := r.db.st.tournaments[s.TournamentID]; !ok {
		return repositories.ErrSessionTournament
	}
	for _, existing := range r.db.st.sessions {
		if existing.TournamentID == s.TournamentID && existing.Round == s.Round &&
			existing.Phase == s.Phase && existing.SeedSlot == s.SeedSlot {
			return repositories.ErrDuplicateSessionSlot
		}
	}
	s.ID = r.db.nextID()
	s.CreatedAt = time.Now().UTC()
	if s.Results == nil {
		s.Results = []models.ResultEntry{}
	}
	r.db.st.sessions[s.ID] = cloneSession(*s)
	return nil
}

func (r memSessionRepo) get(id int) (*models.Session, error) {
	s, ok := r.db.st.sessions[id]
	if !ok {
		return nil, repositories.ErrSessionNotFound
	}
	s = cloneSession(s)
	return &s, nil
}

func (r memSessionRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.get(id)
}

func (r memSessionRepo) GetForUpdate(_ context.Context, exec repositories.SQLExecutor, id int) (*models.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("session.GetForUpdate"); err != nil {
		return nil, err
	}
	if err := r.db.lock(exec, fmt.Sprintf("session:%d", id)); err != nil {
		return nil, err
	}
	return r.get(id)
}

func (r memSessionRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.sortedSessions(func(s models.Session) bool { return s.TournamentID == tournamentID }), nil
}

func (r memSessionRepo) ListByPhase(_ context.Context, _ repositories.SQLExecutor, tournamentID int, phase models.SessionPhase) ([]models.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.sortedSessions(func(s models.Session) bool {
		return s.TournamentID == tournamentID && s.Phase == phase
	}), nil
}

func (r memSessionRepo) ListByRound(_ context.Context, _ repositories.SQLExecutor, tournamentID, round int, phase models.SessionPhase) ([]models.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.sortedSessions(func(s models.Session) bool {
		return s.TournamentID == tournamentID && s.Round == round && s.Phase == phase
	}), nil
}

func (r memSessionRepo) count(keep func(models.Session) bool) (total, completed int) {
	for _, s := range r.db.st.sessions {
		if !keep(s) {
			continue
		}
		total++
		if s.Status == models.SessionCompleted {
			completed++
		}
	}
	return total, completed
}

func (r memSessionRepo) CountByRound(_ context.Context, _ repositories.SQLExecutor, tournamentID, round int, phase models.SessionPhase) (int, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	total, completed := r.count(func(s models.Session) bool {
		return s.TournamentID == tournamentID && s.Round == round && s.Phase == phase
	})
	return total, completed, nil
}

func (r memSessionRepo) CountByPhase(_ context.Context, _ repositories.SQLExecutor, tournamentID int, phase models.SessionPhase) (int, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	total, completed := r.count(func(s models.Session) bool {
		return s.TournamentID == tournamentID && s.Phase == phase
	})
	return total, completed, nil
}

func (r memSessionRepo) CountPending(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	pending := 0
	for _, s := range r.db.st.sessions {
		if s.TournamentID == tournamentID && s.Status != models.SessionCompleted && s.Status != models.SessionCancelled {
			pending++
		}
	}
	return pending, nil
}

func (r memSessionRepo) UpdateResults(_ context.Context, _ repositories.SQLExecutor, s *models.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("session.UpdateResults"); err != nil {
		return err
	}
	stored, ok := r.db.st.sessions[s.ID]
	if !ok {
		return repositories.ErrSessionNotFound
	}
	stored.Results = slices.Clone(s.Results)
	stored.RoundsRecorded = s.RoundsRecorded
	stored.WinnerID = s.WinnerID
	stored.Status = s.Status
	stored.FinalizedAt = s.FinalizedAt
	r.db.st.sessions[s.ID] = stored
	return nil
}

type memRankingRepo struct{ db *memDB }

func (r memRankingRepo) Replace(_ context.Context, _ repositories.SQLExecutor, tournamentID int, rankings []models.TournamentRanking) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("ranking.Replace"); err != nil {
		return err
	}
	if r.db.st.frozen[tournamentID] {
		return repositories.ErrRankingsFrozen
	}
	stored := make([]models.TournamentRanking, len(rankings))
	for i, rk := range rankings {
		rk.ID = r.db.nextID()
		rk.TournamentID = tournamentID
		rk.UpdatedAt = time.Now().UTC()
		stored[i] = rk
	}
	r.db.st.rankings[tournamentID] = stored
	return nil
}

func (r memRankingRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.TournamentRanking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := slices.Clone(r.db.st.rankings[tournamentID])
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	if out == nil {
		out = []models.TournamentRanking{}
	}
	return out, nil
}

func (r memRankingRepo) Freeze(_ context.Context, _ repositories.SQLExecutor, tournamentID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.st.frozen[tournamentID] = true
	list := r.db.st.rankings[tournamentID]
	for i := range list {
		list[i].Frozen = true
	}
	return nil
}

func (r memRankingRepo) IsFrozen(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.st.frozen[tournamentID], nil
}

type memProgressRepo struct{ db *memDB }

func (r memProgressRepo) get(userID int, spec models.Specialization) (*models.Progress, error) {
	p, ok := r.db.st.progress[userSpec{userID, spec}]
	if !ok {
		return nil, repositories.ErrProgressNotFound
	}
	return &p, nil
}

func (r memProgressRepo) Get(_ context.Context, _ repositories.SQLExecutor, userID int, spec models.Specialization) (*models.Progress, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.get(userID, spec)
}

func (r memProgressRepo) GetForUpdate(_ context.Context, exec repositories.SQLExecutor, userID int, spec models.Specialization) (*models.Progress, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("progress.GetForUpdate"); err != nil {
		return nil, err
	}
	if err := r.db.lock(exec, fmt.Sprintf("progress:%d:%s", userID, spec)); err != nil {
		return nil, err
	}
	return r.get(userID, spec)
}

func (r memProgressRepo) Update(_ context.Context, _ repositories.SQLExecutor, p *models.Progress) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("progress.Update"); err != nil {
		return err
	}
	key := userSpec{p.UserID, p.Specialization}
	if _, ok := r.db.st.progress[key]; !ok {
		return repositories.ErrProgressNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	r.db.st.progress[key] = *p
	return nil
}

func (r memProgressRepo) ListLicensedPairs(_ context.Context, _ repositories.SQLExecutor) ([]models.UserSpecialization, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []models.UserSpecialization{}
	for _, l := range r.db.st.licenses {
		if _, ok := r.db.st.progress[userSpec{l.UserID, l.Specialization}]; ok {
			out = append(out, models.UserSpecialization{UserID: l.UserID, Specialization: l.Specialization})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Specialization < out[j].Specialization
	})
	return out, nil
}

type memLicenseRepo struct{ db *memDB }

func (r memLicenseRepo) find(userID int, spec models.Specialization) (*models.License, error) {
	for _, l := range r.db.st.licenses {
		if l.UserID == userID && l.Specialization == spec {
			return &l, nil
		}
	}
	return nil, repositories.ErrLicenseNotFound
}

func (r memLicenseRepo) byID(id int) (*models.License, error) {
	l, ok := r.db.st.licenses[id]
	if !ok {
		return nil, repositories.ErrLicenseNotFound
	}
	return &l, nil
}

func (r memLicenseRepo) Get(_ context.Context, _ repositories.SQLExecutor, userID int, spec models.Specialization) (*models.License, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.find(userID, spec)
}

func (r memLicenseRepo) GetForUpdate(_ context.Context, exec repositories.SQLExecutor, userID int, spec models.Specialization) (*models.License, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("license.GetForUpdate"); err != nil {
		return nil, err
	}
	if err := r.db.lock(exec, fmt.Sprintf("license:%d:%s", userID, spec)); err != nil {
		return nil, err
	}
	return r.find(userID, spec)
}

func (r memLicenseRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.License, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.byID(id)
}

func (r memLicenseRepo) GetByIDForUpdate(_ context.Context, exec repositories.SQLExecutor, id int) (*models.License, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l, err := r.byID(id)
	if err != nil {
		return nil, err
	}
	if err := r.db.lock(exec, fmt.Sprintf("license:%d:%s", l.UserID, l.Specialization)); err != nil {
		return nil, err
	}
	return l, nil
}

func (r memLicenseRepo) UpdateLevels(_ context.Context, _ repositories.SQLExecutor, l *models.License) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("license.UpdateLevels"); err != nil {
		return err
	}
	if _, ok := r.db.st.licenses[l.ID]; !ok {
		return repositories.ErrLicenseNotFound
	}
	l.UpdatedAt = time.Now().UTC()
	r.db.st.licenses[l.ID] = *l
	return nil
}

type memProgressionRepo struct{ db *memDB }

func (r memProgressionRepo) Create(_ context.Context, _ repositories.SQLExecutor, p *models.LicenseProgression) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("progression.Create"); err != nil {
		return err
	}
	p.ID = r.db.nextID()
	p.CreatedAt = time.Now().UTC()
	r.db.st.progressions = append(r.db.st.progressions, *p)
	return nil
}

func (r memProgressionRepo) ListByLicense(_ context.Context, _ repositories.SQLExecutor, licenseID int) ([]models.LicenseProgression, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []models.LicenseProgression{}
	for _, p := range r.db.st.progressions {
		if p.LicenseID == licenseID {
			out = append(out, p)
		}
	}
	return out, nil
}

type memRewardRepo struct{ db *memDB }

func (r memRewardRepo) Exists(_ context.Context, _ repositories.SQLExecutor, tournamentID, userID int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rec := range r.db.st.records {
		if rec.TournamentID == tournamentID && rec.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r memRewardRepo) CreateRecord(_ context.Context, _ repositories.SQLExecutor, rec *models.RewardDistributionRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("reward.CreateRecord"); err != nil {
		return err
	}
	for _, existing := range r.db.st.records {
		if existing.TournamentID == rec.TournamentID && existing.UserID == rec.UserID {
			return repositories.ErrRewardAlreadyDistributed
		}
	}
	rec.ID = r.db.nextID()
	rec.DistributedAt = time.Now().UTC()
	r.db.st.records = append(r.db.st.records, *rec)
	return nil
}

func (r memRewardRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.RewardDistributionRecord, error) {
	out := r.db.rewardRecords(tournamentID)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].UserID < out[j].UserID
	})
	if out == nil {
		out = []models.RewardDistributionRecord{}
	}
	return out, nil
}

func (r memRewardRepo) CreditLedger(_ context.Context, _ repositories.SQLExecutor, e *models.CreditLedgerEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("reward.CreditLedger"); err != nil {
		return err
	}
	e.CreatedAt = time.Now().UTC()
	r.db.st.ledger = append(r.db.st.ledger, *e)
	return nil
}

func (r memRewardRepo) Balance(_ context.Context, _ repositories.SQLExecutor, userID int) (int64, error) {
	var total int64
	for _, e := range r.db.ledgerOf(userID) {
		total += e.Amount
	}
	return total, nil
}

type memAssessmentRepo struct{ db *memDB }

func (r memAssessmentRepo) Create(_ context.Context, _ repositories.SQLExecutor, a *models.SkillAssessment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("assessment.Create"); err != nil {
		return err
	}
	if _, ok := r.db.st.licenses[a.LicenseID]; !ok {
		return repositories.ErrAssessmentLicense
	}
	if a.Status.IsActive() {
		for _, existing := range r.db.st.assessments {
			if existing.LicenseID == a.LicenseID && existing.SkillName == a.SkillName && existing.Status.IsActive() {
				return repositories.ErrActiveAssessmentExists
			}
		}
	}
	a.ID = r.db.nextID()
	a.CreatedAt = time.Now().UTC()
	r.db.st.assessments[a.ID] = *a
	return nil
}

func (r memAssessmentRepo) get(id int) (*models.SkillAssessment, error) {
	a, ok := r.db.st.assessments[id]
	if !ok {
		return nil, repositories.ErrAssessmentNotFound
	}
	return &a, nil
}

func (r memAssessmentRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.SkillAssessment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.get(id)
}

func (r memAssessmentRepo) GetByIDForUpdate(_ context.Context, exec repositories.SQLExecutor, id int) (*models.SkillAssessment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.lock(exec, fmt.Sprintf("assessment:%d", id)); err != nil {
		return nil, err
	}
	return r.get(id)
}

func (r memAssessmentRepo) FindActive(_ context.Context, _ repositories.SQLExecutor, licenseID int, skillName string) (*models.SkillAssessment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, a := range r.db.st.assessments {
		if a.LicenseID == licenseID && a.SkillName == skillName && a.Status.IsActive() {
			return &a, nil
		}
	}
	return nil, repositories.ErrAssessmentNotFound
}

func (r memAssessmentRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, a *models.SkillAssessment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.st.assessments[a.ID]
	if !ok {
		return repositories.ErrAssessmentNotFound
	}
	stored.Status = a.Status
	stored.ValidatedBy = a.ValidatedBy
	stored.ValidatedAt = a.ValidatedAt
	stored.ArchivedAt = a.ArchivedAt
	stored.ArchivedReason = a.ArchivedReason
	r.db.st.assessments[a.ID] = stored
	return nil
}

func (r memAssessmentRepo) ListByLicense(_ context.Context, _ repositories.SQLExecutor, licenseID int, activeOnly bool) ([]models.SkillAssessment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []models.SkillAssessment{}
	for _, a := range r.db.st.assessments {
		if a.LicenseID != licenseID || (activeOnly && !a.Status.IsActive()) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SkillName != out[j].SkillName {
			return out[i].SkillName < out[j].SkillName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type memUserRepo struct{ db *memDB }

func (r memUserRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.st.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	UserID       int
	TournamentID int
	Event        string
	Payload      interface{}
}

func (n *recordingNotifier) NotifyUser(userID int, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{UserID: userID, Event: event, Payload: payload})
}

func (n *recordingNotifier) BroadcastTournament(tournamentID int, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{TournamentID: tournamentID, Event: event, Payload: payload})
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Event == event {
			c++
		}
	}
	return c
}
