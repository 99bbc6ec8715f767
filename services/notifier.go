package services

// Notifier delivers live events to websocket rooms. brackets.Hub implements it.
type Notifier interface {
	NotifyUser(userID int, event string, payload interface{})
	BroadcastTournament(tournamentID int, event string, payload interface{})
}

const (
	EventLevelUp             = "LEVEL_UP"
	EventRewardGranted       = "REWARD_GRANTED"
	EventRoundAdvanced       = "ROUND_ADVANCED"
	EventRankingsUpdated     = "RANKINGS_UPDATED"
	EventSessionUpdated      = "SESSION_UPDATED"
	EventTournamentStarted   = "TOURNAMENT_STARTED"
	EventTournamentCompleted = "TOURNAMENT_COMPLETED"
	EventRewardsDistributed  = "REWARDS_DISTRIBUTED"
)

type NopNotifier struct{}

func (NopNotifier) NotifyUser(int, string, interface{})          {}
func (NopNotifier) BroadcastTournament(int, string, interface{}) {}
