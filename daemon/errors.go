package daemon

import "errors"

// Errors returned by the daemon's entry points, in the shape of
// core/constants.go's flat sentinel list.
var (
	ErrNotRunning         = errors.New("daemon: not running")
	ErrDuplicateHandler   = errors.New("daemon: handler already registered for prefix")
	ErrHandlerNotFound    = errors.New("daemon: no handler registered for prefix")
	ErrNoAddressFamily    = errors.New("daemon: neither UseIPv4 nor UseIPv6 set")
	ErrMissingTLSMaterial = errors.New("daemon: UseSSL requires CertFile and KeyFile")
	ErrWrongMode          = errors.New("daemon: GetFDSet/Run only valid without UseInternalSelect or UseThreadPerConnection")
)
