package arena

import (
	"slices"
	"time"
)

type Action interface{ isAction() }

type SetCardLoadingState struct {
	State CardLoadingState
}

type UpdateCardLoadingState struct {
	Patch CardLoadingPatch
}

type ResetCardLoading struct{}

type SetMessages struct {
	Messages []ChatMessage
}

type SetNewMessage struct {
	Text string
}

type SetCard struct {
	Text string
}

func (SetCardLoadingState) isAction()    {}
func (UpdateCardLoadingState) isAction() {}
func (ResetCardLoading) isAction()       {}
func (SetMessages) isAction()            {}
func (SetNewMessage) isAction()          {}
func (SetCard) isAction()                {}

// CardLoadingPatch is a partial CardLoadingState. Nil fields are left alone.
type CardLoadingPatch struct {
	Status             *CardStatus
	RetryCount         *int
	LastRetryTime      *time.Time
	ClearLastRetryTime bool
}

func PatchStatus(status CardStatus) CardLoadingPatch {
	return CardLoadingPatch{Status: &status}
}

func (p CardLoadingPatch) WithRetryCount(n int) CardLoadingPatch {
	p.RetryCount = &n
	return p
}

func (p CardLoadingPatch) WithLastRetryTime(t time.Time) CardLoadingPatch {
	p.LastRetryTime = &t
	p.ClearLastRetryTime = false
	return p
}

func (p CardLoadingPatch) WithoutLastRetryTime() CardLoadingPatch {
	p.LastRetryTime = nil
	p.ClearLastRetryTime = true
	return p
}

func (p CardLoadingPatch) apply(c CardLoadingState) CardLoadingState {
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.RetryCount != nil {
		c.RetryCount = *p.RetryCount
	}
	switch {
	case p.ClearLastRetryTime:
		c.LastRetryTime = nil
	case p.LastRetryTime != nil:
		t := *p.LastRetryTime
		c.LastRetryTime = &t
	}
	return c
}

// Reduce returns the next state. When the action changes nothing observable the
// input pointer itself is returned.
func Reduce(s *State, a Action) *State {
	switch act := a.(type) {
	case SetCardLoadingState:
		if s.CardLoading.Equal(act.State) {
			return s
		}
		next := s.clone()
		next.CardLoading = act.State
		if act.State.LastRetryTime != nil {
			t := *act.State.LastRetryTime
			next.CardLoading.LastRetryTime = &t
		}
		return next

	case UpdateCardLoadingState:
		next := s.clone()
		next.CardLoading = act.Patch.apply(s.CardLoading)
		return next

	case ResetCardLoading:
		next := s.clone()
		next.CardLoading = CardLoadingState{Status: StatusIdle}
		return next

	case SetMessages:
		if SameMessages(s.Messages, act.Messages) {
			return s
		}
		next := s.clone()
		next.Messages = slices.Clone(act.Messages)
		if next.Messages == nil {
			next.Messages = []ChatMessage{}
		}
		return next

	case SetNewMessage:
		if s.NewMessage == act.Text {
			return s
		}
		next := s.clone()
		next.NewMessage = act.Text
		return next

	case SetCard:
		if s.Card == act.Text {
			return s
		}
		next := s.clone()
		next.Card = act.Text
		return next

	default:
		return s
	}
}
