package models

import "errors"

var (
	ErrShopNotFound    = errors.New("shop not found")
	ErrShopInactive    = errors.New("shop is inactive")
	ErrInvalidStaff    = errors.New("staff is unknown, inactive or belongs to another shop")
	ErrInvalidService  = errors.New("service is unknown, inactive or belongs to another shop")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidName     = errors.New("customer name required")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInvalidActor    = errors.New("invalid actor")
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidInterval = errors.New("end must be after start")
	ErrOffGrid         = errors.New("start time is not on the slot grid")
	ErrOutsideHours    = errors.New("slot is outside working hours")
	ErrPastSlot        = errors.New("slot is in the past")

	ErrSlotTaken        = errors.New("slot taken")
	ErrBlocked          = errors.New("slot blocked")
	ErrNotReschedulable = errors.New("booking is cancelled")

	ErrBookingNotFound    = errors.New("booking not found")
	ErrOutboxNotFound     = errors.New("outbox entry not found")
	ErrOutboxNotRetriable = errors.New("outbox entry is cancelled")
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

var kinds = map[error]Kind{
	ErrShopInactive:       KindValidation,
	ErrInvalidStaff:       KindValidation,
	ErrInvalidService:     KindValidation,
	ErrInvalidPhone:       KindValidation,
	ErrInvalidEmail:       KindValidation,
	ErrInvalidName:        KindValidation,
	ErrInvalidDate:        KindValidation,
	ErrInvalidTimezone:    KindValidation,
	ErrInvalidActor:       KindValidation,
	ErrInvalidID:          KindValidation,
	ErrInvalidInterval:    KindValidation,
	ErrOffGrid:            KindValidation,
	ErrOutsideHours:       KindValidation,
	ErrPastSlot:           KindValidation,
	ErrSlotTaken:          KindConflict,
	ErrBlocked:            KindConflict,
	ErrNotReschedulable:   KindConflict,
	ErrOutboxNotRetriable: KindConflict,
	ErrShopNotFound:       KindNotFound,
	ErrBookingNotFound:    KindNotFound,
	ErrOutboxNotFound:     KindNotFound,
}

// KindOf classifies an error, following wrapped chains
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for target, kind := range kinds {
		if errors.Is(err, target) {
			return kind
		}
	}
	return KindInternal
}
