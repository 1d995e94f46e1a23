package syncer

import (
	"fmt"
	"strings"
)

// Strategy decides which side wins when a local and a remote record for the
// same type and date disagree.
type Strategy string

const (
	LocalWins  Strategy = "local_wins"
	RemoteWins Strategy = "remote_wins"
	Merge      Strategy = "merge"
	Manual     Strategy = "manual"
)

// DefaultStrategy is used when nothing has been persisted.
const DefaultStrategy = Merge

// StrategySettingKey is the settings key holding the persisted strategy.
const StrategySettingKey = "sync_conflict_strategy"

var strategies = []Strategy{LocalWins, RemoteWins, Merge, Manual}

// ParseStrategy accepts the persisted names, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	v := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range strategies {
		if v == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown conflict strategy %q (want one of local_wins, remote_wins, merge, manual)", s)
}

func (s Strategy) String() string { return string(s) }

// Choice is the user's decision for a manual conflict.
type Choice string

const (
	ChoiceLocal  Choice = "local"
	ChoiceRemote Choice = "remote"
)

func ParseChoice(s string) (Choice, error) {
	switch Choice(strings.ToLower(strings.TrimSpace(s))) {
	case ChoiceLocal:
		return ChoiceLocal, nil
	case ChoiceRemote:
		return ChoiceRemote, nil
	}
	return "", fmt.Errorf("unknown resolution %q (want local or remote)", s)
}

// State is the engine's position in a sync cycle.
type State string

const (
	StateIdle      State = "idle"
	StateSyncing   State = "syncing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)
