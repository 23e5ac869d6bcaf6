// Package trip records a driver's trip: it gates on location permission,
// follows a position watch while the trip runs, and keeps a bounded history
// of fixes.
package trip

import (
	"context"
	"errors"
	"time"

	"fleet-tracking-system/models"
)

type PermissionState string

const (
	PermissionPrompt  PermissionState = "prompt"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

func (p PermissionState) Valid() bool {
	switch p {
	case PermissionPrompt, PermissionGranted, PermissionDenied:
		return true
	}
	return false
}

type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// Options used for the one-off permission request and for the trip watch.
var (
	RequestOptions = PositionOptions{HighAccuracy: true, Timeout: 10 * time.Second}
	WatchOptions   = PositionOptions{HighAccuracy: true, Timeout: 30 * time.Second, MaximumAge: 5 * time.Second}
)

// ErrorCode follows the browser geolocation codes. CodeUnsupported has no
// browser equivalent.
type ErrorCode int

const (
	CodePermissionDenied    ErrorCode = 1
	CodePositionUnavailable ErrorCode = 2
	CodeTimeout             ErrorCode = 3
	CodeUnsupported         ErrorCode = 4
)

func (c ErrorCode) Valid() bool { return c >= CodePermissionDenied && c <= CodeUnsupported }

func (c ErrorCode) Message() string {
	switch c {
	case CodePermissionDenied:
		return "Location access denied. Please enable location permissions."
	case CodePositionUnavailable:
		return "Location information unavailable."
	case CodeTimeout:
		return "Location request timed out."
	case CodeUnsupported:
		return "Geolocation is not supported on this device"
	}
	return "Location access denied"
}

type PositionError struct {
	Code ErrorCode
}

func (e *PositionError) Error() string { return e.Code.Message() }

const (
	msgWatchFailed = "Failed to get location updates"
	msgStartFailed = "Failed to start trip"
)

// userMessage maps a failed start to the message shown on the trip panel.
func userMessage(err error) string {
	var pe *PositionError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout.Message()
	}
	return msgStartFailed
}

// Watch is a live position subscription.
type Watch interface {
	Cancel()
}

// Geolocator is the device location source.
type Geolocator interface {
	Permission(ctx context.Context) (PermissionState, error)
	CurrentPosition(ctx context.Context, opts PositionOptions) (models.PositionFix, error)
	Watch(opts PositionOptions, onFix func(models.PositionFix), onErr func(error)) (Watch, error)
}
