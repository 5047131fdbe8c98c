package arena

func NewState() *State {
	return &State{
		CardLoading: CardLoadingState{Status: StatusIdle},
		Messages:    []ChatMessage{},
	}
}

var transitions = map[CardStatus][]CardStatus{
	StatusIdle:     {StatusLoading},
	StatusLoading:  {StatusLoaded, StatusError},
	StatusError:    {StatusRetrying, StatusLoading},
	StatusRetrying: {StatusLoaded, StatusError, StatusRetrying},
	StatusLoaded:   {StatusLoading},
}

// CanTransition reports whether from -> to is an edge of the card lifecycle.
// Staying put and resetting to idle are always allowed.
func CanTransition(from, to CardStatus) bool {
	if from == to || to == StatusIdle {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
