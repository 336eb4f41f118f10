package shard

import (
	"errors"
	"fmt"
)

var (
	ErrTruncatedBuffer    = errors.New("request buffer is truncated")
	ErrInvalidUTF8        = errors.New("condition is not valid UTF-8")
	ErrMissingField       = errors.New("condition is missing a required field")
	ErrInvalidColumnValue = errors.New("column value is not an unsigned 8-bit integer")
	ErrBufferOverflow     = errors.New("table name does not fit in the request buffer")
	ErrInvalidConfig      = errors.New("invalid resolver configuration")
)

// Status is the error kind carried across the host/guest boundary.
// It occupies a single byte of the packed outcome.
type Status uint8

const (
	StatusOK Status = iota
	StatusTruncatedBuffer
	StatusInvalidUTF8
	StatusMissingField
	StatusInvalidColumnValue
	StatusBufferOverflow
	StatusInvalidConfig
	// StatusUnknown is used for any error that does not map to a known kind.
	StatusUnknown Status = 0xff
)

var statusErrors = map[Status]error{
	StatusTruncatedBuffer:    ErrTruncatedBuffer,
	StatusInvalidUTF8:        ErrInvalidUTF8,
	StatusMissingField:       ErrMissingField,
	StatusInvalidColumnValue: ErrInvalidColumnValue,
	StatusBufferOverflow:     ErrBufferOverflow,
	StatusInvalidConfig:      ErrInvalidConfig,
}

// StatusOf returns the status for err. A nil error is StatusOK.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	for status, sentinel := range statusErrors {
		if errors.Is(err, sentinel) {
			return status
		}
	}
	return StatusUnknown
}

// Err converts a status received from the guest back into an error
// that matches the package sentinels with errors.Is.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	if err, ok := statusErrors[s]; ok {
		return err
	}
	return fmt.Errorf("unknown guest status %d", uint8(s))
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTruncatedBuffer:
		return "truncated_buffer"
	case StatusInvalidUTF8:
		return "invalid_utf8"
	case StatusMissingField:
		return "missing_field"
	case StatusInvalidColumnValue:
		return "invalid_column_value"
	case StatusBufferOverflow:
		return "buffer_overflow"
	case StatusInvalidConfig:
		return "invalid_config"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}
