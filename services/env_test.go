package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/tournament-progression/cache"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/retry"
	"github.com/Dosada05/tournament-progression/storage"
	"github.com/stretchr/testify/require"
)

const (
	organizerID  = 900
	instructorID = 901
)

// testEnv wires every service against one in-memory store.
type testEnv struct {
	db       *memDB
	notifier *recordingNotifier
	uploader *fakeUploader

	coupler      ProgressLicenseCoupler
	assessments  SkillAssessmentService
	rankings     RankingService
	progression  KnockoutProgressionService
	brackets     BracketService
	tournaments  TournamentService
	participants *ParticipantService
	rewards      RewardDistributionService
	matches      MatchService
	jobs         *ConsistencyJobs
	dashboard    DashboardService
}

func testRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newMemDB()
	logger := discardLogger()
	env := &testEnv{db: db, notifier: &recordingNotifier{}, uploader: &fakeUploader{objects: map[string][]byte{}}}

	tournamentRepo := memTournamentRepo{db}
	participantRepo := memParticipantRepo{db}
	sessionRepo := memSessionRepo{db}
	rankingRepo := memRankingRepo{db}
	progressRepo := memProgressRepo{db}
	licenseRepo := memLicenseRepo{db}
	progressionRepo := memProgressionRepo{db}
	rewardRepo := memRewardRepo{db}
	assessmentRepo := memAssessmentRepo{db}
	userRepo := memUserRepo{db}

	schedule := ScheduleConfig{RoundGap: time.Hour, SessionDuration: 30 * time.Minute}

	env.assessments = NewSkillAssessmentService(db, assessmentRepo, licenseRepo, userRepo, DefaultAssessmentRules(), logger)
	env.coupler = NewProgressLicenseCoupler(db, progressRepo, licenseRepo, progressionRepo, logger,
		WithAdvancementGate(env.assessments),
		WithCouplerNotifier(env.notifier),
	)
	env.rankings = NewRankingService(db, tournamentRepo, sessionRepo, rankingRepo, cache.NewMemoryRankingsCache(time.Minute), env.notifier, logger)
	env.progression = NewKnockoutProgressionService(db, sessionRepo, tournamentRepo, env.notifier, schedule, logger)
	env.brackets = NewBracketService(tournamentRepo, participantRepo, sessionRepo, schedule, logger)
	env.tournaments = NewTournamentService(db, tournamentRepo, participantRepo, sessionRepo, rankingRepo, userRepo,
		env.brackets, env.rankings, env.uploader, env.notifier, logger)
	env.participants = NewParticipantService(db, participantRepo, userRepo, tournamentRepo, logger)
	env.rewards = NewRewardDistributionService(db, tournamentRepo, rankingRepo, rewardRepo, env.coupler, env.notifier,
		RewardConfig{Policy: DefaultRewardPolicy(), Concurrency: 2, Retry: testRetryConfig()}, logger)
	env.matches = NewMatchService(db, sessionRepo, tournamentRepo, env.rankings, env.progression, env.tournaments,
		env.rewards, env.notifier, logger)
	env.jobs = NewConsistencyJobs(progressRepo, tournamentRepo, env.coupler, env.rewards, logger)
	env.dashboard = NewDashboardService(progressRepo, licenseRepo, progressionRepo, rewardRepo)

	longAgo := time.Now().AddDate(-2, 0, 0)
	db.addUser(organizerID, models.RoleOrganizer, longAgo)
	db.addUser(instructorID, models.RoleInstructor, longAgo)
	return env
}

// players registers participant accounts with a PLAYER track at level 1.
func (env *testEnv) players(ids ...int) {
	for _, id := range ids {
		env.db.addUser(id, models.RoleParticipant, time.Now())
		env.db.addProgress(id, models.SpecializationPlayer, 1, 0)
		env.db.addLicense(id, models.SpecializationPlayer, 1, 1)
	}
}

func bracketPtr(b models.BracketType) *models.BracketType { return &b }

func scoringPtr(s models.ScoringType) *models.ScoringType { return &s }

func score(v float64) *float64 { return &v }

func rankOf(v int) *int { return &v }

// startTournament creates a tournament, registers the users in seed order and starts it.
func (env *testEnv) startTournament(t *testing.T, input CreateTournamentInput, userIDs ...int) *models.Tournament {
	t.Helper()
	ctx := context.Background()
	if input.Name == "" {
		input.Name = "Spring Cup"
	}
	if input.Specialization == "" {
		input.Specialization = models.SpecializationPlayer
	}
	if input.MaxParticipants == 0 {
		input.MaxParticipants = 16
	}
	created, err := env.tournaments.Create(ctx, organizerID, input)
	require.NoError(t, err)
	for _, id := range userIDs {
		_, err := env.participants.RegisterUserAsParticipant(ctx, id, created.ID)
		require.NoError(t, err)
	}
	started, err := env.tournaments.Start(ctx, created.ID)
	require.NoError(t, err)
	return started
}

func knockoutInput(thirdPlace bool) CreateTournamentInput {
	return CreateTournamentInput{
		Format:          models.FormatHeadToHead,
		Bracket:         bracketPtr(models.BracketSingleElimination),
		ThirdPlaceMatch: thirdPlace,
	}
}

// sessionWith finds the session of the given round and phase containing participant.
func (env *testEnv) sessionWith(t *testing.T, tournamentID, round int, phase models.SessionPhase, participant int) models.Session {
	t.Helper()
	for _, s := range env.db.sessionsOf(tournamentID) {
		if s.Round == round && s.Phase == phase && s.HasParticipant(participant) {
			return s
		}
	}
	t.Fatalf("no %s round %d session with participant %d", phase, round, participant)
	return models.Session{}
}

// win submits a decisive head-to-head result.
func (env *testEnv) win(t *testing.T, session models.Session, winner int) *SessionOutcome {
	t.Helper()
	require.Len(t, session.ParticipantIDs, 2)
	entries := make([]models.ResultEntry, 0, 2)
	for _, p := range session.ParticipantIDs {
		s := 1.0
		if p == winner {
			s = 3
		}
		entries = append(entries, models.ResultEntry{ParticipantID: p, Score: score(s)})
	}
	outcome, err := env.matches.SubmitResult(context.Background(), session.ID, entries)
	require.NoError(t, err)
	return outcome
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (u *fakeUploader) Upload(_ context.Context, key string, _ string, reader io.Reader) (*storage.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail {
		return nil, errors.New("bucket unavailable")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, err
	}
	u.objects[key] = buf.Bytes()
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://archive.test/" + key
}

func (u *fakeUploader) has(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.objects[key]
	return ok
}
