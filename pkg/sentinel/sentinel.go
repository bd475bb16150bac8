package sentinel

import "errors"

// Sentinel errors for infrastructure and domain-integrity facts. Stores and
// infrastructure layers return these (optionally wrapped) so services can
// translate them without string matching.
//
// Lookup-style operations prefer absent results (nil, nil) over ErrNotFound;
// the sentinel is reserved for required-entity misses.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrSecurity     = errors.New("security failure")
	ErrBadInput     = errors.New("bad input")
)
