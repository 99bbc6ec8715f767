package models

import "time"

// TournamentStatus представляет статусы турнира, соответствующие колонке status в БД.
type TournamentStatus string

const (
	StatusDraft              TournamentStatus = "DRAFT"
	StatusInProgress         TournamentStatus = "IN_PROGRESS"
	StatusCompleted          TournamentStatus = "COMPLETED"
	StatusRewardsDistributed TournamentStatus = "REWARDS_DISTRIBUTED"
	StatusCancelled          TournamentStatus = "CANCELLED"
)

var tournamentTransitions = map[TournamentStatus][]TournamentStatus{
	StatusDraft:              {StatusInProgress, StatusCancelled},
	StatusInProgress:         {StatusCompleted, StatusCancelled},
	StatusCompleted:          {StatusRewardsDistributed},
	StatusRewardsDistributed: {},
	StatusCancelled:          {},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	for _, allowed := range tournamentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TournamentStatus) Valid() bool {
	_, ok := tournamentTransitions[s]
	return ok
}

type TournamentFormat string

const (
	FormatHeadToHead        TournamentFormat = "HEAD_TO_HEAD"
	FormatIndividualRanking TournamentFormat = "INDIVIDUAL_RANKING"
	FormatGroupAndKnockout  TournamentFormat = "GROUP_AND_KNOCKOUT"
)

func (f TournamentFormat) Valid() bool {
	switch f {
	case FormatHeadToHead, FormatIndividualRanking, FormatGroupAndKnockout:
		return true
	}
	return false
}

// BracketType applies to HEAD_TO_HEAD tournaments only.
type BracketType string

const (
	BracketSingleElimination BracketType = "SINGLE_ELIMINATION"
	BracketRoundRobin        BracketType = "ROUND_ROBIN"
)

func (b BracketType) Valid() bool {
	return b == BracketSingleElimination || b == BracketRoundRobin
}

type ScoringType string

const (
	ScoringTimeBased     ScoringType = "TIME_BASED"
	ScoringScoreBased    ScoringType = "SCORE_BASED"
	ScoringDistanceBased ScoringType = "DISTANCE_BASED"
	ScoringRoundsBased   ScoringType = "ROUNDS_BASED"
	ScoringPlacement     ScoringType = "PLACEMENT"
)

func (s ScoringType) Valid() bool {
	switch s {
	case ScoringTimeBased, ScoringScoreBased, ScoringDistanceBased, ScoringRoundsBased, ScoringPlacement:
		return true
	}
	return false
}

type RankingDirection string

const (
	DirectionAsc  RankingDirection = "ASC"
	DirectionDesc RankingDirection = "DESC"
)

func (d RankingDirection) Valid() bool {
	return d == DirectionAsc || d == DirectionDesc
}

type Tournament struct {
	ID                   int               `json:"id" db:"id"`
	Name                 string            `json:"name" db:"name"`
	OrganizerID          int               `json:"organizer_id" db:"organizer_id"`
	Format               TournamentFormat  `json:"format" db:"format"`
	Bracket              *BracketType      `json:"bracket,omitempty" db:"bracket"`
	ScoringType          *ScoringType      `json:"scoring_type,omitempty" db:"scoring_type"`
	RankingDirection     *RankingDirection `json:"ranking_direction,omitempty" db:"ranking_direction"`
	Specialization       Specialization    `json:"specialization" db:"specialization"`
	Status               TournamentStatus  `json:"status" db:"status"`
	MaxParticipants      int               `json:"max_participants" db:"max_participants"`
	NumberOfRounds       int               `json:"number_of_rounds" db:"number_of_rounds"`
	ThirdPlaceMatch      bool              `json:"third_place_match" db:"third_place_match"`
	GroupCount           int               `json:"group_count" db:"group_count"`
	QualifiersPerGroup   int               `json:"qualifiers_per_group" db:"qualifiers_per_group"`
	StartDate            *time.Time        `json:"start_date,omitempty" db:"start_date"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	RewardsDistributedAt *time.Time        `json:"rewards_distributed_at,omitempty" db:"rewards_distributed_at"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`

	Participants []TournamentParticipant `json:"participants,omitempty" db:"-"`
	Sessions     []Session               `json:"sessions,omitempty" db:"-"`
}

// UsesKnockout reports whether sessions of the tournament advance through a bracket.
func (t *Tournament) UsesKnockout() bool {
	switch t.Format {
	case FormatGroupAndKnockout:
		return true
	case FormatHeadToHead:
		return t.Bracket != nil && *t.Bracket == BracketSingleElimination
	}
	return false
}

func (t *Tournament) Scoring() ScoringType {
	if t.ScoringType == nil {
		return ""
	}
	return *t.ScoringType
}

func (t *Tournament) Direction() RankingDirection {
	if t.RankingDirection == nil {
		return ""
	}
	return *t.RankingDirection
}
