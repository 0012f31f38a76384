package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCallInErrorState   = errors.New("call is in error state")
	ErrMissingAudio       = errors.New("call has no audio file")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrModelNotConfigured = errors.New("model backend not configured")
	ErrUnsupportedAudio   = errors.New("unsupported audio format")
)

// UnsupportedAudioError names the container that was rejected and the ones
// the tone backend accepts.
type UnsupportedAudioError struct {
	Format    string
	Supported []string
	Cause     error
}

func (e *UnsupportedAudioError) Error() string {
	msg := fmt.Sprintf("unsupported audio format %q (supported: %s)", e.Format, strings.Join(e.Supported, ", "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnsupportedAudioError) Is(target error) bool {
	return target == ErrUnsupportedAudio
}

func (e *UnsupportedAudioError) Unwrap() error {
	return e.Cause
}
