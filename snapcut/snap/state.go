package snap

import (
	"sort"
	"strings"
)

// State is the observed or desired state of a snap.
type State string

const (
	Present   State = "present"
	Absent    State = "absent"
	Latest    State = "latest"
	Available State = "available"
)

// States lists every valid State.
var States = []State{Present, Absent, Latest, Available}

func ParseState(s string) (State, error) {
	state := State(strings.ToLower(strings.TrimSpace(s)))
	if !state.Valid() {
		return "", validationError("unknown snap state %q", s)
	}
	return state, nil
}

func (s State) Valid() bool {
	switch s {
	case Present, Absent, Latest, Available:
		return true
	}
	return false
}

// Installed reports whether the state implies the snap is on the system.
func (s State) Installed() bool {
	return s == Present || s == Latest
}

// Action is what Ensure does to move a snap between two states.
type Action string

const (
	ActionNone    Action = "none"
	ActionInstall Action = "install"
	ActionRefresh Action = "refresh"
	ActionRemove  Action = "remove"
)

// unknown is the state of a record built from a bare name.
const unknown State = ""

var transitions = map[State]map[State]Action{
	unknown: {
		Present:   ActionInstall,
		Latest:    ActionInstall,
		Available: ActionInstall,
		Absent:    ActionRemove,
	},
	Absent: {
		Present:   ActionInstall,
		Latest:    ActionInstall,
		Available: ActionInstall,
		Absent:    ActionNone,
	},
	Available: {
		Present:   ActionInstall,
		Latest:    ActionInstall,
		Available: ActionNone,
		Absent:    ActionRemove,
	},
	Present: {
		Present:   ActionNone,
		Latest:    ActionRefresh,
		Available: ActionRefresh,
		Absent:    ActionRemove,
	},
	Latest: {
		Present:   ActionRefresh,
		Latest:    ActionNone,
		Available: ActionRefresh,
		Absent:    ActionRemove,
	},
}

// Plan returns the action that moves a snap from one state to another.
func Plan(from, to State) Action {
	if action, ok := transitions[from][to]; ok {
		return action
	}
	return ActionNone
}

// Transition is one row of the state transition table.
type Transition struct {
	From   State
	To     State
	Action Action
}

// Transitions enumerates the whole transition table in a stable order.
func Transitions() []Transition {
	var table []Transition
	for from, row := range transitions {
		for to, action := range row {
			table = append(table, Transition{From: from, To: to, Action: action})
		}
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].From != table[j].From {
			return table[i].From < table[j].From
		}
		return table[i].To < table[j].To
	})
	return table
}
