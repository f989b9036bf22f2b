package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Provider name constants, matching the values stored on orders
const (
	NameHostycare = "hostycare"
	NameSmartVPS  = "smartvps"
)

// ServerSpec describes the machine to create upstream
type ServerSpec struct {
	OrderID  string
	Hostname string
	OS       string
	Memory   string
}

// ServerInfo is the uniform result shape across providers
type ServerInfo struct {
	ServiceID string
	IPAddress string
	Username  string
	Password  string
}

// Complete reports whether the provider returned a full credential set.
// A success response with partial credentials is treated as a failure and
// never persisted.
func (i *ServerInfo) Complete() bool {
	return i != nil && i.ServiceID != "" && i.IPAddress != "" && i.Username != "" && i.Password != ""
}

// Adapter is the uniform interface over upstream VPS providers
type Adapter interface {
	Name() string
	CreateServer(ctx context.Context, spec ServerSpec) (*ServerInfo, error)
}

// ErrIncompleteCredentials marks a success response missing credentials
var ErrIncompleteCredentials = errors.New("provider returned incomplete credentials")

// ErrorKind classifies provider errors for retry eligibility
type ErrorKind int

const (
	// KindTransient errors (timeouts, 5xx, rate limits) may be retried
	// automatically
	KindTransient ErrorKind = iota
	// KindPermanent errors (bad spec, quota, auth) need admin intervention
	KindPermanent
)

func (k ErrorKind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "permanent"
}

// Error is a classified provider error
type Error struct {
	Kind     ErrorKind
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v (%s)", e.Provider, e.Op, e.Err, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable provider error
func Transient(provider, op string, err error) *Error {
	return &Error{Kind: KindTransient, Provider: provider, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable provider error
func Permanent(provider, op string, err error) *Error {
	return &Error{Kind: KindPermanent, Provider: provider, Op: op, Err: err}
}

// IsTransient reports whether err is a retryable provider error
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindTransient
	}
	return false
}

// classifyStatus maps an upstream HTTP status to an error kind: rate limits
// and server-side failures are retryable, everything else is a configuration
// or auth problem.
func classifyStatus(code int) ErrorKind {
	if code == http.StatusTooManyRequests || code >= 500 {
		return KindTransient
	}
	return KindPermanent
}
