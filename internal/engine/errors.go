package engine

import (
	"errors"
	"fmt"
)

// Rejection codes shared with the wire protocol.
const (
	CodeInvalidPhase         = "INVALID_PHASE"
	CodeNotYourTurn          = "NOT_YOUR_TURN"
	CodeInsufficientResource = "INSUFFICIENT_RESOURCE"
	CodeUnknownCard          = "UNKNOWN_CARD"
	CodeStaleSequence        = "STALE_SEQUENCE"
	CodeInvalidAction        = "INVALID_ACTION"
	CodeMatchFinished        = "MATCH_FINISHED"
)

// Rejection is a recoverable refusal of an action. The state it was
// validated against is left untouched.
type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	return r.Code + ": " + r.Message
}

func reject(code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrIntegrity wraps failures that leave a match in an impossible state.
var ErrIntegrity = errors.New("match state integrity violated")

// AsRejection unwraps err into a Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
