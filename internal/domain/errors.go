package domain

import "errors"

var (
	// ErrRiskViolation means the sizing inputs cannot produce a valid
	// order, for example a stop equal to the entry.
	ErrRiskViolation = errors.New("risk violation")
	// ErrEntryRejected means the guard refused the zone.
	ErrEntryRejected = errors.New("entry rejected")
	// ErrDataGap means the candle feed is missing bars and structure
	// state cannot be trusted until a backfill completes.
	ErrDataGap = errors.New("candle data gap")
	// ErrPositionExists guards the one-position-per-symbol rule.
	ErrPositionExists = errors.New("position already open")
)
