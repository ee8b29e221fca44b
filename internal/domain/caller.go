package domain

import (
	"math"
	"strings"
	"time"
)

// CallerContext identifies the host invocation a reply belongs to.
// Fields are ordered to minimize memory padding.
type CallerContext struct {
	Extras         map[string]string `json:"extras,omitempty"`
	ID             string            `json:"id"`
	ReplyTo        string            `json:"replyTo,omitempty"` // Reply queue directory or http(s) URL
	Ordered        bool              `json:"ordered"`           // Host waits for a reply
	VariableReturn bool              `json:"variableReturn"`    // Host accepts returned variables
}

// ReplyIsHTTP reports whether replies are posted to an HTTP endpoint.
func (c CallerContext) ReplyIsHTTP() bool {
	return strings.HasPrefix(c.ReplyTo, "http://") || strings.HasPrefix(c.ReplyTo, "https://")
}

// PendingCallback correlates an in-flight execution with its caller.
// Fields are ordered to minimize memory padding.
type PendingCallback struct {
	CreatedAt     time.Time     `json:"createdAt"`
	Caller        CallerContext `json:"caller"`
	Executable    string        `json:"executable"`
	RequestCode   int           `json:"requestCode"`
	RunInTerminal bool          `json:"runInTerminal"`
}

// Expired reports whether the entry is older than ttl at now.
// A non-positive ttl never expires.
func (p PendingCallback) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(p.CreatedAt) > ttl
}

// DefaultRequestCode is where the request-code counter starts and restarts
// after overflow.
const DefaultRequestCode = 0

// NextRequestCode returns the request code following last. It restarts from
// DefaultRequestCode when the next value would reach MaxInt32 or last is
// negative.
func NextRequestCode(last int) int {
	if last < 0 || last >= math.MaxInt32-1 {
		return DefaultRequestCode
	}
	return last + 1
}
