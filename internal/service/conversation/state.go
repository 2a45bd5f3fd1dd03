package conversation

// State is a step of the single-round tool-use protocol.
type State string

const (
	StateAwaitingUserQuery   State = "awaiting_user_query"
	StateModelRequested      State = "model_requested"
	StateNoToolCall          State = "no_tool_call"
	StateToolRequested       State = "tool_requested"
	StateToolDispatched      State = "tool_dispatched"
	StateModelRequestedAgain State = "model_requested_again"
	StateAnswered            State = "answered"
	StateFailed              State = "failed"
)

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateAwaitingUserQuery:   {StateModelRequested},
	StateModelRequested:      {StateNoToolCall, StateToolRequested, StateFailed},
	StateNoToolCall:          {StateAnswered},
	StateToolRequested:       {StateToolDispatched, StateFailed},
	StateToolDispatched:      {StateModelRequestedAgain, StateAnswered, StateFailed},
	StateModelRequestedAgain: {StateAnswered, StateFailed},
}

// canTransition reports whether the protocol allows moving from one state to another.
func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
