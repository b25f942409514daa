// Package reconnect decides whether a failed upstream session is retried and
// how long to wait before the next attempt.
package reconnect

import (
	"math"
	"time"

	"github.com/gorilla/websocket"
)

// CloseBadGateway is not among the gorilla/websocket constants.
const CloseBadGateway = 1014

// CodeNone marks a failure that carried no close code.
const CodeNone = 0

type Verdict int

const (
	GiveUp Verdict = iota
	Retry
)

func (v Verdict) String() string {
	switch v {
	case Retry:
		return "retry"
	default:
		return "give_up"
	}
}

// retryable lists close codes that point at a transient service condition.
var retryable = map[int]struct{}{
	websocket.CloseAbnormalClosure:   {},
	websocket.CloseInternalServerErr: {},
	websocket.CloseServiceRestart:    {},
	websocket.CloseTryAgainLater:     {},
	CloseBadGateway:                  {},
	websocket.CloseTLSHandshake:      {},
}

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2,
	}
}

func Retryable(code int) bool {
	_, ok := retryable[code]
	return ok
}

// Classify returns GiveUp once attempt reaches the ceiling, whatever the code.
func (p Policy) Classify(attempt, code int) Verdict {
	if attempt >= p.MaxAttempts {
		return GiveUp
	}
	if Retryable(code) {
		return Retry
	}
	return GiveUp
}

// Delay is min(InitialDelay * Factor^attempt, MaxDelay). Internal server errors
// are known to clear on their own and skip the wait.
func (p Policy) Delay(attempt, code int) time.Duration {
	if code == websocket.CloseInternalServerErr {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.Factor, float64(attempt))
	if d >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
