package manager

import "errors"

var (
	ErrProgramNotFound             = errors.New("program not found")
	ErrDuplicateReservation        = errors.New("program is already reserved")
	ErrNewReservationConflict      = errors.New("new reservation conflicts")
	ErrEncodeOptionInvalid         = errors.New("encode option is invalid")
	ErrEditTargetNotFound          = errors.New("reservation to edit not found")
	ErrEditTargetIsRuleReservation = errors.New("reservation to edit is rule-derived")
	ErrEditTargetIsRecording       = errors.New("reservation to edit is recording")
)
