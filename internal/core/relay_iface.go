package core

import "github.com/dkeye/Translate/internal/domain"

// RelaySession is what the registry keeps of a live supervisor.
type RelaySession interface {
	ID() domain.SessionID
	Snapshot() domain.RelaySnapshot
}
