package panel

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySeries         = errors.New("panel: no data fetched")
	ErrInsufficientHistory = errors.New("panel: insufficient history")
	ErrZeroVariance        = errors.New("panel: zero return variance")
	ErrTooManyMissing      = errors.New("panel: too many missing sessions")
	ErrSchemaMismatch      = errors.New("panel: frame columns do not match")
	ErrNoData              = errors.New("panel: no data available to combine")
)

// Stage names a step of the per-symbol pipeline.
type Stage string

const (
	StageFetch     Stage = "FETCH"
	StageCoverage  Stage = "VALIDATE_COVERAGE"
	StageVariance  Stage = "VALIDATE_VARIANCE"
	StageClean     Stage = "CLEAN"
	StageReconcile Stage = "RECONCILE_CALENDAR"
	StageReady     Stage = "READY"
)

// SymbolError reports the stage at which a symbol was rejected.
type SymbolError struct {
	Symbol string
	Stage  Stage
	Err    error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Symbol, e.Stage, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }
