package handlers

import (
	"context"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
	"github.com/Dosada05/tournament-progression/services"
)

// Заглушки сервисов: каждый тест задаёт только нужные функции.

type fakeTournamentService struct {
	create      func(ctx context.Context, organizerID int, input services.CreateTournamentInput) (*models.Tournament, error)
	get         func(ctx context.Context, id int) (*models.Tournament, error)
	start       func(ctx context.Context, id int) (*models.Tournament, error)
	cancel      func(ctx context.Context, id int) (*models.Tournament, error)
	complete    func(ctx context.Context, id int) (*services.CompletionResult, error)
	sessions    func(ctx context.Context, id int) ([]models.Session, error)
	rankings    func(ctx context.Context, id int) ([]models.TournamentRanking, error)
	recalculate func(ctx context.Context, id int) ([]models.TournamentRanking, error)
}

func (f *fakeTournamentService) Create(ctx context.Context, organizerID int, input services.CreateTournamentInput) (*models.Tournament, error) {
	return f.create(ctx, organizerID, input)
}

func (f *fakeTournamentService) Get(ctx context.Context, id int) (*models.Tournament, error) {
	return f.get(ctx, id)
}

func (f *fakeTournamentService) Start(ctx context.Context, id int) (*models.Tournament, error) {
	return f.start(ctx, id)
}

func (f *fakeTournamentService) Cancel(ctx context.Context, id int) (*models.Tournament, error) {
	return f.cancel(ctx, id)
}

func (f *fakeTournamentService) Complete(ctx context.Context, id int) (*services.CompletionResult, error) {
	return f.complete(ctx, id)
}

func (f *fakeTournamentService) ListSessions(ctx context.Context, id int) ([]models.Session, error) {
	return f.sessions(ctx, id)
}

func (f *fakeTournamentService) GetRankings(ctx context.Context, id int) ([]models.TournamentRanking, error) {
	return f.rankings(ctx, id)
}

func (f *fakeTournamentService) RecalculateRankings(ctx context.Context, id int) ([]models.TournamentRanking, error) {
	return f.recalculate(ctx, id)
}

type fakeRegistrar struct {
	register func(ctx context.Context, userID, tournamentID int) (*models.TournamentParticipant, error)
	list     func(ctx context.Context, tournamentID int) ([]models.TournamentParticipant, error)
}

func (f *fakeRegistrar) RegisterUserAsParticipant(ctx context.Context, userID, tournamentID int) (*models.TournamentParticipant, error) {
	return f.register(ctx, userID, tournamentID)
}

func (f *fakeRegistrar) ListParticipantsByTournament(ctx context.Context, tournamentID int) ([]models.TournamentParticipant, error) {
	return f.list(ctx, tournamentID)
}

type fakeRewards struct {
	distribute func(ctx context.Context, tournamentID int) (*services.DistributionResult, error)
}

func (f *fakeRewards) Distribute(ctx context.Context, tournamentID int) (*services.DistributionResult, error) {
	return f.distribute(ctx, tournamentID)
}

type fakeMatchService struct {
	submit   func(ctx context.Context, sessionID int, entries []models.ResultEntry) (*services.SessionOutcome, error)
	correct  func(ctx context.Context, sessionID int, entries []models.ResultEntry) (*services.SessionOutcome, error)
	finalize func(ctx context.Context, sessionID int) (*services.SessionOutcome, error)
	preview  func(ctx context.Context, sessionID int) (*services.ProgressionPlan, error)
}

func (f *fakeMatchService) SubmitResult(ctx context.Context, sessionID int, entries []models.ResultEntry) (*services.SessionOutcome, error) {
	return f.submit(ctx, sessionID, entries)
}

func (f *fakeMatchService) CorrectResult(ctx context.Context, sessionID int, entries []models.ResultEntry) (*services.SessionOutcome, error) {
	return f.correct(ctx, sessionID, entries)
}

func (f *fakeMatchService) FinalizeSession(ctx context.Context, sessionID int) (*services.SessionOutcome, error) {
	return f.finalize(ctx, sessionID)
}

func (f *fakeMatchService) PreviewProgression(ctx context.Context, sessionID int) (*services.ProgressionPlan, error) {
	return f.preview(ctx, sessionID)
}

type fakeAssessments struct {
	create      func(ctx context.Context, input services.CreateAssessmentInput) (*services.AssessmentOutcome, error)
	validate    func(ctx context.Context, id, validatorID int) (*services.AssessmentOutcome, error)
	archive     func(ctx context.Context, id int, reason string) (*services.AssessmentOutcome, error)
	list        func(ctx context.Context, licenseID int, activeOnly bool) ([]models.SkillAssessment, error)
	eligibility func(ctx context.Context, licenseID int) (*services.Eligibility, error)
}

func (f *fakeAssessments) CreateAssessment(ctx context.Context, input services.CreateAssessmentInput) (*services.AssessmentOutcome, error) {
	return f.create(ctx, input)
}

func (f *fakeAssessments) ValidateAssessment(ctx context.Context, id, validatorID int) (*services.AssessmentOutcome, error) {
	return f.validate(ctx, id, validatorID)
}

func (f *fakeAssessments) ArchiveAssessment(ctx context.Context, id int, reason string) (*services.AssessmentOutcome, error) {
	return f.archive(ctx, id, reason)
}

func (f *fakeAssessments) ListAssessments(ctx context.Context, licenseID int, activeOnly bool) ([]models.SkillAssessment, error) {
	return f.list(ctx, licenseID, activeOnly)
}

func (f *fakeAssessments) AdvancementEligibility(ctx context.Context, licenseID int) (*services.Eligibility, error) {
	return f.eligibility(ctx, licenseID)
}

func (f *fakeAssessments) CheckAdvancement(context.Context, repositories.SQLExecutor, int) error {
	panic("not used by handlers")
}

type fakeCoupler struct {
	update      func(ctx context.Context, req services.LevelUpdateRequest) (*services.CouplingResult, error)
	sync        func(ctx context.Context, userID int, spec models.Specialization, source services.SyncSource) (*services.CouplingResult, error)
	consistency func(ctx context.Context, userID int, spec models.Specialization) (*services.ConsistencyStatus, error)
}

func (f *fakeCoupler) UpdateLevelAtomic(ctx context.Context, req services.LevelUpdateRequest) (*services.CouplingResult, error) {
	return f.update(ctx, req)
}

func (f *fakeCoupler) AwardExperienceTx(context.Context, repositories.SQLExecutor, services.ExperienceAward) (*services.CouplingResult, error) {
	panic("not used by handlers")
}

func (f *fakeCoupler) SyncExistingRecordsAtomic(ctx context.Context, userID int, spec models.Specialization, source services.SyncSource) (*services.CouplingResult, error) {
	return f.sync(ctx, userID, spec, source)
}

func (f *fakeCoupler) ValidateConsistency(ctx context.Context, userID int, spec models.Specialization) (*services.ConsistencyStatus, error) {
	return f.consistency(ctx, userID, spec)
}

type fakeDashboard struct {
	get func(ctx context.Context, userID int, spec models.Specialization) (*models.ProgressDashboard, error)
}

func (f *fakeDashboard) GetProgress(ctx context.Context, userID int, spec models.Specialization) (*models.ProgressDashboard, error) {
	return f.get(ctx, userID, spec)
}
