package arena

import (
	"time"
)

type CardStatus string

const (
	StatusIdle     CardStatus = "idle"
	StatusLoading  CardStatus = "loading"
	StatusLoaded   CardStatus = "loaded"
	StatusError    CardStatus = "error"
	StatusRetrying CardStatus = "retrying"
)

// CardLoadingState tracks the fetch lifecycle of the current card.
// A nil LastRetryTime means no retry has been stamped yet.
type CardLoadingState struct {
	Status        CardStatus `json:"status"`
	RetryCount    int        `json:"retryCount"`
	LastRetryTime *time.Time `json:"lastRetryTime"`
}

// Equal compares field by field. Retry times are compared as instants.
func (c CardLoadingState) Equal(o CardLoadingState) bool {
	if c.Status != o.Status || c.RetryCount != o.RetryCount {
		return false
	}
	if c.LastRetryTime == nil || o.LastRetryTime == nil {
		return c.LastRetryTime == nil && o.LastRetryTime == nil
	}
	return c.LastRetryTime.Equal(*o.LastRetryTime)
}

type AuthorRef struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type ChatMessage struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	Author  AuthorRef `json:"author"`
}

// SameAs reports whether two messages are the same entity for change detection.
func (m ChatMessage) SameAs(o ChatMessage) bool {
	return m.ID == o.ID && m.Message == o.Message
}

func SameMessages(a, b []ChatMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SameAs(b[i]) {
			return false
		}
	}
	return true
}

// State is one viewer's arena. Values handed out by Reduce must not be mutated.
type State struct {
	CardLoading CardLoadingState `json:"cardLoadingState"`
	Card        string           `json:"card"`
	Messages    []ChatMessage    `json:"messages"`
	NewMessage  string           `json:"newMessage"`
}

func (s *State) clone() *State {
	next := *s
	return &next
}
