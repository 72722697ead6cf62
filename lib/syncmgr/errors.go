package syncmgr

import "errors"

var (
	// ErrClosed is returned for operations on a destroyed orchestrator.
	ErrClosed = errors.New("sync orchestrator is closed")
)
