// Package gateway decides whether a viewer may open an arena session for a lobby.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/DoyleJ11/meme-arena/internal/auth"
)

var ErrInvalidAdmission = errors.New("invalid admission")

type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonMalformedCode   Reason = "malformed_code"
	ReasonNotFound        Reason = "lobby_not_found"
)

// HTTPStatus maps a refusal onto the status HTTP and websocket entry points reply with.
func (r Reason) HTTPStatus() int {
	switch r {
	case ReasonNone:
		return http.StatusOK
	case ReasonUnauthenticated:
		return http.StatusUnauthorized
	case ReasonMalformedCode:
		return http.StatusBadRequest
	case ReasonNotFound:
		return http.StatusNotFound
	}
	return http.StatusForbidden
}

type Admission struct {
	Admitted bool   `json:"admitted"`
	Reason   Reason `json:"reason,omitempty"`
}

func (a Admission) Err() error {
	if a.Admitted {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidAdmission, a.Reason)
}

type Admitter interface {
	Admit(code string, user *auth.User) Admission
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{5}$`)

func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Gateway checks identity and code shape. Exists, when set, also requires the
// lobby to be live.
type Gateway struct {
	Exists func(code string) bool
}

func (g Gateway) Admit(code string, user *auth.User) Admission {
	if user == nil {
		return Admission{Reason: ReasonUnauthenticated}
	}
	if !ValidCode(code) {
		return Admission{Reason: ReasonMalformedCode}
	}
	if g.Exists != nil && !g.Exists(code) {
		return Admission{Reason: ReasonNotFound}
	}
	return Admission{Admitted: true}
}
