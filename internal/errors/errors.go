// Package errors provides domain-specific error types for connprobe.
//
// Check failures are not propagated as errors; they are classified into
// a Reason so the probe can print a human-readable verdict.  The types
// here carry that classification plus the usual structured context
// (operation, address).
package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrUnknownMode  = errors.New("unknown mode")
	ErrSinkUnusable = errors.New("progress sink unusable")
	ErrCancelled    = errors.New("check cancelled")
	ErrNoAddress    = errors.New("no address for requested IP family")
)

// ── Reasons ──────────────────────────────────────────────────────────

// Reason is the operator-facing class of a failed check.
type Reason string

const (
	ReasonTimeout            Reason = "timeout"
	ReasonRefused            Reason = "refused"
	ReasonHostUnreachable    Reason = "host-unreachable"
	ReasonNetworkUnreachable Reason = "network-unreachable"
	ReasonResolution         Reason = "resolution"
	ReasonPermission         Reason = "permission"
	ReasonAddrInUse          Reason = "address-in-use"
	ReasonToolMissing        Reason = "tool-missing"
	ReasonCancelled          Reason = "cancelled"
	ReasonInvalidParam       Reason = "invalid-parameter"
	ReasonOther              Reason = "other"
)

// Describe returns the sentence printed in an NG verdict.
func (r Reason) Describe() string {
	switch r {
	case ReasonTimeout:
		return "Timed out waiting for a response. A firewall may be dropping packets or the target may be down."
	case ReasonRefused:
		return "Connection refused by the target machine. (No service is listening on the port)"
	case ReasonHostUnreachable:
		return "Target host is unreachable. (Possible network routing problem)"
	case ReasonNetworkUnreachable:
		return "Target network is unreachable. (No route to the network)"
	case ReasonResolution:
		return "Host name could not be resolved. (DNS name resolution failed)"
	case ReasonPermission:
		return "Permission denied by the operating system."
	case ReasonAddrInUse:
		return "Address already in use."
	case ReasonToolMissing:
		return "Required system tool was not found."
	case ReasonCancelled:
		return "Check was cancelled before it completed."
	case ReasonInvalidParam:
		return "Invalid parameter value."
	default:
		return "Check failed."
	}
}

// ── Structured error types ───────────────────────────────────────────

// CheckError records why a single probe failed.
type CheckError struct {
	Op     string // "dial", "ping", "listen", "inspect", "resolve"
	Addr   string // address or host involved
	Reason Reason
	Err    error
}

func (e *CheckError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// ParamError is a parameter that could not be coerced for a check.
type ParamError struct {
	Key   string
	Value string
	Msg   string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("parameter %s=%q: %s", e.Key, e.Value, e.Msg)
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config key
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a CheckError, classifying the underlying error.
func Wrap(op, addr string, err error) *CheckError {
	return &CheckError{Op: op, Addr: addr, Reason: Classify(err), Err: err}
}

// ── Classification ───────────────────────────────────────────────────

// Classify maps an error from the net, os/exec or syscall layers onto a
// Reason.  Unknown errors map to ReasonOther.
func Classify(err error) Reason {
	if err == nil {
		return ""
	}

	var ce *CheckError
	if errors.As(err, &ce) && ce.Reason != "" {
		return ce.Reason
	}
	var pe *ParamError
	if errors.As(err, &pe) {
		return ReasonInvalidParam
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		return ReasonCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrNoAddress):
		return ReasonResolution
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReasonRefused
	case errors.Is(err, syscall.EHOSTUNREACH):
		return ReasonHostUnreachable
	case errors.Is(err, syscall.ENETUNREACH):
		return ReasonNetworkUnreachable
	case errors.Is(err, syscall.EADDRINUSE):
		return ReasonAddrInUse
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM), errors.Is(err, os.ErrPermission):
		return ReasonPermission
	case errors.Is(err, exec.ErrNotFound):
		return ReasonToolMissing
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ReasonTimeout
		}
		return ReasonResolution
	}
	// "no suitable address found" when the family hint excludes every
	// address of the host.
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return ReasonResolution
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return ReasonToolMissing
	}
	if missingExecutable(err) {
		return ReasonToolMissing
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonOther
}

// missingExecutable reports a tool configured by path that does not
// exist.  Starting it fails with a *fs.PathError from "fork/exec" (or
// "exec" on Windows) rather than exec.ErrNotFound.
func missingExecutable(err error) bool {
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		return false
	}
	return strings.HasSuffix(pathErr.Op, "exec") && errors.Is(pathErr.Err, fs.ErrNotExist)
}

// Code returns a short errno-style label for evidence lines, for
// example "ECONNREFUSED".  It returns "N/A" when none applies.
func Code(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name, ok := errnoNames[errno]; ok {
			return name
		}
		return fmt.Sprintf("errno %d", int(errno))
	}
	switch Classify(err) {
	case ReasonTimeout:
		return "ETIMEDOUT"
	case ReasonResolution:
		return "ENOTFOUND"
	case ReasonCancelled:
		return "ECANCELED"
	}
	return "N/A"
}

var errnoNames = map[syscall.Errno]string{
	syscall.ECONNREFUSED: "ECONNREFUSED",
	syscall.EHOSTUNREACH: "EHOSTUNREACH",
	syscall.ENETUNREACH:  "ENETUNREACH",
	syscall.ETIMEDOUT:    "ETIMEDOUT",
	syscall.EADDRINUSE:   "EADDRINUSE",
	syscall.EACCES:       "EACCES",
	syscall.EPERM:        "EPERM",
	syscall.ECONNRESET:   "ECONNRESET",
}

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
