package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

type StrategyName string

const (
	MockStrategy StrategyName = "mock"
	HTTPStrategy StrategyName = "http"
	TCPStrategy  StrategyName = "tcp"
	PingStrategy StrategyName = "ping"
)

// Client performs one bounded liveness check against a shard endpoint.
type Client interface {
	Address() string
	Ping(ctx context.Context) error
}

// Factory creates a client for address. Clients never fail on creation,
// invalid addresses show up as a Ping error.
type Factory func(address string, timeout time.Duration) Client

type FailureKind int8

const (
	FailureUnknown FailureKind = iota
	FailureTimeout
	FailureConnect
	FailureRejected
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureConnect:
		return "connect"
	case FailureRejected:
		return "rejected"
	}
	return "unknown"
}

var ErrRejected = errors.New("liveness check rejected")

type Error struct {
	Addr string
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ping %s failed (%s): %v", e.Addr, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap converts err into *Error, guessing the failure kind from the error
// chain. An error that is already *Error is returned as is.
func Wrap(addr string, err error) error {
	if err == nil {
		return nil
	}
	var probeErr *Error
	if errors.As(err, &probeErr) {
		return err
	}
	return &Error{
		Addr: addr,
		Kind: kindOf(err),
		Err:  err,
	}
}

func Kind(err error) FailureKind {
	var probeErr *Error
	if errors.As(err, &probeErr) {
		return probeErr.Kind
	}
	return kindOf(err)
}

func kindOf(err error) FailureKind {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, ErrRejected) {
		return FailureRejected
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return FailureConnect
	}
	return FailureUnknown
}
