package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Dosada05/tournament-progression/brackets"
	"github.com/Dosada05/tournament-progression/metrics"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/rankings"
	"github.com/Dosada05/tournament-progression/repositories"
	"github.com/Dosada05/tournament-progression/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PlanKind string

const (
	PlanWait               PlanKind = "wait"
	PlanCreateNextRound    PlanKind = "create_next_round"
	PlanCompleteTournament PlanKind = "complete_tournament"
)

type RoundState string

const (
	RoundWaiting  RoundState = "WAITING"
	RoundReady    RoundState = "READY"
	RoundAdvanced RoundState = "ADVANCED"
)

// PlannedSession is a fully specified session that execution will insert as is.
type PlannedSession struct {
	Round          int                 `json:"round"`
	Phase          models.SessionPhase `json:"phase"`
	SeedSlot       int                 `json:"seed_slot"`
	GroupLabel     *string             `json:"group_label,omitempty"`
	ParticipantIDs []int               `json:"participant_ids"`
	IsBye          bool                `json:"is_bye"`
	WinnerID       *int                `json:"winner_id,omitempty"`
	StartsAt       *time.Time          `json:"starts_at,omitempty"`
	EndsAt         *time.Time          `json:"ends_at,omitempty"`
}

type ProgressionPlan struct {
	Kind         PlanKind            `json:"kind"`
	TournamentID int                 `json:"tournament_id"`
	SourceRound  int                 `json:"source_round"`
	SourcePhase  models.SessionPhase `json:"source_phase"`
	State        RoundState          `json:"state"`
	Completed    int                 `json:"completed"`
	Total        int                 `json:"total"`
	Message      string              `json:"message"`
	Sessions     []PlannedSession    `json:"sessions,omitempty"`
	Byes         []int               `json:"byes,omitempty"`
	ChampionID   *int                `json:"champion_id,omitempty"`
}

type ProgressionResult struct {
	Kind               PlanKind `json:"kind"`
	CreatedSessionIDs  []int    `json:"created_session_ids,omitempty"`
	Message            string   `json:"message"`
	NoOp               bool     `json:"no_op"`
	TournamentComplete bool     `json:"tournament_complete"`
	ChampionID         *int     `json:"champion_id,omitempty"`
}

// KnockoutProgressionService plans bracket advancement read-only and applies
// plans through ExecuteProgression, its only mutating method.
type KnockoutProgressionService interface {
	CanProgress(session *models.Session, t *models.Tournament) bool
	// CalculateProgression returns nil when the session does not drive a bracket.
	CalculateProgression(ctx context.Context, session *models.Session, t *models.Tournament) (*ProgressionPlan, error)
	CalculateKnockoutSeeding(ctx context.Context, t *models.Tournament) (*ProgressionPlan, error)
	ExecuteProgression(ctx context.Context, plan *ProgressionPlan, t *models.Tournament) (*ProgressionResult, error)
}

type ScheduleConfig struct {
	RoundGap        time.Duration
	SessionDuration time.Duration
}

type knockoutProgressionService struct {
	txm            repositories.TxManager
	sessionRepo    repositories.SessionRepository
	tournamentRepo repositories.TournamentRepository
	notifier       Notifier
	schedule       ScheduleConfig
	logger         *slog.Logger
	now            func() time.Time
}

func NewKnockoutProgressionService(
	txm repositories.TxManager,
	sessionRepo repositories.SessionRepository,
	tournamentRepo repositories.TournamentRepository,
	notifier Notifier,
	schedule ScheduleConfig,
	logger *slog.Logger,
) KnockoutProgressionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &knockoutProgressionService{
		txm:            txm,
		sessionRepo:    sessionRepo,
		tournamentRepo: tournamentRepo,
		notifier:       notifier,
		schedule:       schedule,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *knockoutProgressionService) CanProgress(session *models.Session, t *models.Tournament) bool {
	if session == nil || t == nil || session.TournamentID != t.ID {
		return false
	}
	return session.Phase.IsKnockout() && t.UsesKnockout()
}

func (s *knockoutProgressionService) CalculateProgression(ctx context.Context, session *models.Session, t *models.Tournament) (*ProgressionPlan, error) {
	if !s.CanProgress(session, t) {
		return nil, nil
	}
	ctx, span := tracing.Tracer().Start(ctx, "progression.Calculate")
	defer span.End()
	span.SetAttributes(attribute.Int("tournament_id", t.ID), attribute.Int("round", session.Round))

	round := session.Round
	matches, err := s.sessionRepo.ListByRound(ctx, nil, t.ID, round, models.PhaseKnockout)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: round %d has no knockout sessions", ErrValidation, round)
	}
	slices.SortFunc(matches, func(a, b models.Session) int { return a.SeedSlot - b.SeedSlot })

	completed := 0
	for _, m := range matches {
		if !m.IsCompleted() {
			continue
		}
		if m.WinnerID == nil {
			return nil, fmt.Errorf("%w: completed knockout session %d has no winner", ErrValidation, m.ID)
		}
		completed++
	}

	plan := &ProgressionPlan{
		Kind:         PlanWait,
		TournamentID: t.ID,
		SourceRound:  round,
		SourcePhase:  models.PhaseKnockout,
		State:        RoundWaiting,
		Completed:    completed,
		Total:        len(matches),
	}
	if completed < len(matches) {
		plan.Message = fmt.Sprintf("round %d: %d/%d matches completed", round, completed, len(matches))
		return plan, nil
	}

	next, err := s.sessionRepo.ListByRound(ctx, nil, t.ID, round+1, models.PhaseKnockout)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if len(next) > 0 {
		plan.State = RoundAdvanced
		plan.Message = fmt.Sprintf("round %d already advanced to round %d", round, round+1)
		return plan, nil
	}

	plan.State = RoundReady
	if len(matches) == 1 {
		return s.planFinal(ctx, plan, t, matches[0])
	}

	winners := make([]int, 0, len(matches))
	for _, m := range matches {
		winners = append(winners, *m.WinnerID)
	}

	startsAt, endsAt := s.window()
	plan.Kind = PlanCreateNextRound
	for i, pair := range brackets.PairSeeded(winners) {
		ps := PlannedSession{
			Round:          round + 1,
			Phase:          models.PhaseKnockout,
			SeedSlot:       i + 1,
			ParticipantIDs: pair,
		}
		if len(pair) == 1 {
			winner := pair[0]
			ps.IsBye = true
			ps.WinnerID = &winner
			plan.Byes = append(plan.Byes, winner)
		} else {
			ps.StartsAt, ps.EndsAt = &startsAt, &endsAt
		}
		plan.Sessions = append(plan.Sessions, ps)
	}

	bronzeSkipped := false
	if t.ThirdPlaceMatch && len(matches) == 2 {
		first, second := matches[0].LoserID(), matches[1].LoserID()
		// полуфинал-bye не даёт проигравшего, матча за третье место нет
		bronzeSkipped = first == nil || second == nil
		if !bronzeSkipped {
			plan.Sessions = append(plan.Sessions, PlannedSession{
				Round:          round + 1,
				Phase:          models.PhaseBronze,
				SeedSlot:       1,
				ParticipantIDs: []int{*first, *second},
				StartsAt:       &startsAt,
				EndsAt:         &endsAt,
			})
		}
	}

	plan.Message = fmt.Sprintf("round %d complete: %d sessions planned for round %d", round, len(plan.Sessions), round+1)
	if len(plan.Byes) > 0 {
		plan.Message += fmt.Sprintf(", %d advancing on a bye", len(plan.Byes))
	}
	if bronzeSkipped {
		plan.Message += ", no bronze match: a semifinal was a bye"
	}
	return plan, nil
}

// planFinal decides between waiting for a pending bronze match and completing.
func (s *knockoutProgressionService) planFinal(ctx context.Context, plan *ProgressionPlan, t *models.Tournament, final models.Session) (*ProgressionPlan, error) {
	bronze, err := s.sessionRepo.ListByRound(ctx, nil, t.ID, plan.SourceRound, models.PhaseBronze)
	if err != nil {
		return nil, translateRepoError(err)
	}
	for _, b := range bronze {
		if !b.IsCompleted() {
			plan.Message = fmt.Sprintf("final decided, waiting for the bronze match (session %d)", b.ID)
			return plan, nil
		}
	}

	champion := *final.WinnerID
	plan.Kind = PlanCompleteTournament
	plan.ChampionID = &champion
	plan.Message = fmt.Sprintf("final complete: participant %d wins the tournament", champion)
	return plan, nil
}

func (s *knockoutProgressionService) CalculateKnockoutSeeding(ctx context.Context, t *models.Tournament) (*ProgressionPlan, error) {
	if t.Format != models.FormatGroupAndKnockout {
		return nil, fmt.Errorf("%w: tournament %d has no group stage", ErrValidation, t.ID)
	}

	groupSessions, err := s.sessionRepo.ListByPhase(ctx, nil, t.ID, models.PhaseGroup)
	if err != nil {
		return nil, translateRepoError(err)
	}
	completed := 0
	for _, gs := range groupSessions {
		if gs.IsCompleted() {
			completed++
		}
	}

	plan := &ProgressionPlan{
		Kind:         PlanWait,
		TournamentID: t.ID,
		SourcePhase:  models.PhaseGroup,
		State:        RoundWaiting,
		Completed:    completed,
		Total:        len(groupSessions),
	}
	if len(groupSessions) == 0 || completed < len(groupSessions) {
		plan.Message = fmt.Sprintf("group stage: %d/%d matches completed", completed, len(groupSessions))
		return plan, nil
	}

	firstRound, err := s.sessionRepo.ListByRound(ctx, nil, t.ID, 1, models.PhaseKnockout)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if len(firstRound) > 0 {
		plan.State = RoundAdvanced
		plan.Message = "group stage already seeded into the knockout bracket"
		return plan, nil
	}

	seeds, err := rankings.SeedKnockout(rankings.GroupStandings(groupSessions), t.QualifiersPerGroup)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	startsAt, endsAt := s.window()
	plan.Kind = PlanCreateNextRound
	plan.State = RoundReady
	for i, pair := range brackets.OpeningRound(seeds) {
		ps := PlannedSession{
			Round:          1,
			Phase:          models.PhaseKnockout,
			SeedSlot:       i + 1,
			ParticipantIDs: pair,
		}
		if len(pair) == 1 {
			winner := pair[0]
			ps.IsBye = true
			ps.WinnerID = &winner
			plan.Byes = append(plan.Byes, winner)
		} else {
			ps.StartsAt, ps.EndsAt = &startsAt, &endsAt
		}
		plan.Sessions = append(plan.Sessions, ps)
	}
	plan.Message = fmt.Sprintf("group stage complete: %d qualifiers seeded into %d knockout sessions", len(seeds), len(plan.Sessions))
	return plan, nil
}

func (s *knockoutProgressionService) ExecuteProgression(ctx context.Context, plan *ProgressionPlan, t *models.Tournament) (*ProgressionResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("%w: progression plan is required", ErrValidation)
	}
	if plan.TournamentID != t.ID {
		return nil, fmt.Errorf("%w: plan for tournament %d applied to tournament %d", ErrValidation, plan.TournamentID, t.ID)
	}

	switch plan.Kind {
	case PlanWait:
		metrics.ObserveProgressionPlan(string(plan.Kind), "no_op")
		return &ProgressionResult{Kind: plan.Kind, Message: plan.Message, NoOp: true}, nil
	case PlanCompleteTournament:
		metrics.ObserveProgressionPlan(string(plan.Kind), "ok")
		return &ProgressionResult{
			Kind:               plan.Kind,
			Message:            plan.Message,
			TournamentComplete: true,
			ChampionID:         plan.ChampionID,
		}, nil
	case PlanCreateNextRound:
	default:
		return nil, fmt.Errorf("%w: unknown plan kind %q", ErrValidation, plan.Kind)
	}

	ctx, span := tracing.Tracer().Start(ctx, "progression.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.Int("tournament_id", t.ID),
		attribute.Int("source_round", plan.SourceRound),
		attribute.Int("sessions", len(plan.Sessions)),
	)

	var created []models.Session
	err := s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		current, err := s.tournamentRepo.GetByID(ctx, exec, t.ID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusInProgress {
			return fmt.Errorf("%w: tournament %d is %s", ErrInvalidStateTransition, t.ID, current.Status)
		}

		var total, completed int
		if plan.SourcePhase == models.PhaseGroup {
			total, completed, err = s.sessionRepo.CountByPhase(ctx, exec, t.ID, models.PhaseGroup)
		} else {
			total, completed, err = s.sessionRepo.CountByRound(ctx, exec, t.ID, plan.SourceRound, models.PhaseKnockout)
		}
		if err != nil {
			return err
		}
		if total != plan.Total || completed != total {
			return fmt.Errorf("%w: source round changed since planning (%d/%d completed, planned %d)",
				ErrConcurrencyConflict, completed, total, plan.Total)
		}

		now := s.now().UTC()
		created = make([]models.Session, 0, len(plan.Sessions))
		for _, ps := range plan.Sessions {
			session := &models.Session{
				TournamentID:   t.ID,
				Round:          ps.Round,
				Phase:          ps.Phase,
				SeedSlot:       ps.SeedSlot,
				GroupLabel:     ps.GroupLabel,
				ParticipantIDs: ps.ParticipantIDs,
				IsBye:          ps.IsBye,
				WinnerID:       ps.WinnerID,
				Status:         models.SessionScheduled,
				StartsAt:       ps.StartsAt,
				EndsAt:         ps.EndsAt,
			}
			if ps.IsBye {
				session.Status = models.SessionCompleted
				session.FinalizedAt = &now
			}
			if err := s.sessionRepo.Create(ctx, exec, session); err != nil {
				return err
			}
			created = append(created, *session)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateSessionSlot) {
			metrics.ObserveProgressionPlan(string(plan.Kind), "no_op")
			s.logger.InfoContext(ctx, "round already advanced by a concurrent request",
				slog.Int("tournament_id", t.ID),
				slog.Int("source_round", plan.SourceRound),
			)
			return &ProgressionResult{
				Kind:    plan.Kind,
				Message: fmt.Sprintf("round %d was already advanced", plan.SourceRound),
				NoOp:    true,
			}, nil
		}
		err = translateRepoError(err)
		metrics.ObserveProgressionPlan(string(plan.Kind), string(ClassifyError(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.ObserveProgressionPlan(string(plan.Kind), "ok")
	result := &ProgressionResult{
		Kind:              plan.Kind,
		CreatedSessionIDs: sessionIDs(created),
		Message:           fmt.Sprintf("created %d sessions: %s", len(created), plan.Message),
	}
	s.logger.InfoContext(ctx, "bracket advanced",
		slog.Int("tournament_id", t.ID),
		slog.Int("source_round", plan.SourceRound),
		slog.String("source_phase", string(plan.SourcePhase)),
		slog.Any("session_ids", result.CreatedSessionIDs),
	)
	s.notifier.BroadcastTournament(t.ID, EventRoundAdvanced, result)
	return result, nil
}

func (s *knockoutProgressionService) window() (time.Time, time.Time) {
	startsAt := s.now().UTC().Add(s.schedule.RoundGap)
	return startsAt, startsAt.Add(s.schedule.SessionDuration)
}
