// Package model talks to hosted and local large language models.
package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/ashureev/codebot/internal/domain"
)

// Request is one completion call: the full ordered history plus call options.
type Request struct {
	Turns        []domain.Message
	SystemPrompt string
	MaxTokens    int
	Model        string
}

// Reply is the model's answer text.
type Reply struct {
	Content string
}

// Client produces a reply for a conversation history. Errors are *Fault.
type Client interface {
	Complete(ctx context.Context, req Request) (Reply, error)
}

// FaultKind classifies why a completion failed.
type FaultKind string

const (
	// FaultTransport covers network errors, timeouts and cancellations.
	FaultTransport FaultKind = "transport"
	// FaultStatus is a non-success HTTP status from the provider.
	FaultStatus FaultKind = "status"
	// FaultMalformed is a response without usable text.
	FaultMalformed FaultKind = "malformed"
)

// Fault is the error type returned by every Client.
type Fault struct {
	Kind       FaultKind
	Provider   string
	StatusCode int
	Err        error
}

func (f *Fault) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s model %s fault (status %d): %v", f.Provider, f.Kind, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("%s model %s fault: %v", f.Provider, f.Kind, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// IsFault reports whether err is a *Fault of the given kind.
func IsFault(err error, kind FaultKind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}

var statusCodePattern = regexp.MustCompile(`status code:? (\d{3})`)

// classify turns a provider SDK error into a Fault. Errors that carry an HTTP
// status become FaultStatus; everything else is FaultTransport.
func classify(provider string, err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Fault{Kind: FaultTransport, Provider: provider, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Fault{Kind: FaultTransport, Provider: provider, Err: err}
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return &Fault{Kind: FaultStatus, Provider: provider, StatusCode: code, Err: err}
	}
	return &Fault{Kind: FaultTransport, Provider: provider, Err: err}
}

// timeoutClient bounds every call with a deadline.
type timeoutClient struct {
	next    Client
	timeout time.Duration
}

func (c *timeoutClient) Complete(ctx context.Context, req Request) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.Complete(ctx, req)
}
