// Package errclass maps arbitrary errors onto a small taxonomy that the job
// lifecycle and the presentation layer can act on: what kind of failure it
// is, how bad it is, whether retrying makes sense and what to tell the user.
package errclass

import "time"

// Type is the failure category.
type Type string

const (
	TypeNetwork   Type = "network"
	TypeServer    Type = "server"
	TypeClient    Type = "client"
	TypeTimeout   Type = "timeout"
	TypeCancelled Type = "cancelled"
	TypeUnknown   Type = "unknown"
)

// AllTypes lists every Type in display order.
var AllTypes = []Type{TypeNetwork, TypeServer, TypeClient, TypeTimeout, TypeCancelled, TypeUnknown}

// Severity ranks how disruptive a failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AllSeverities lists every Severity from least to most severe.
var AllSeverities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Suggested retry delays per category.
const (
	NetworkRetryDelay   = 2 * time.Second
	TimeoutRetryDelay   = 3 * time.Second
	ServerRetryDelay    = 5 * time.Second
	RateLimitRetryDelay = 60 * time.Second
)

// Classification is the result of Classify.
type Classification struct {
	Type        Type          `json:"type"`
	Severity    Severity      `json:"severity"`
	Recoverable bool          `json:"recoverable"`
	Retryable   bool          `json:"retryable"`
	UserMessage string        `json:"user_message"`
	RetryDelay  time.Duration `json:"retry_delay"`

	// StatusCode is set for HTTP failures
	StatusCode  int  `json:"status_code,omitempty"`
	RateLimited bool `json:"rate_limited,omitempty"`

	// Detail is the technical description of the underlying error
	Detail string `json:"detail,omitempty"`
}

// User facing messages.
const (
	msgCancelled    = "The operation was cancelled."
	msgNetwork      = "Unable to reach the analysis service. Check your connection and try again."
	msgTimeout      = "The analysis service took too long to respond. Please try again."
	msgUnauthorized = "Your session is not authorized. Please sign in again."
	msgForbidden    = "You do not have permission to perform this action."
	msgBadRequest   = "The request was invalid. Please check the keyword and audience and try again."
	msgNotFound     = "The requested analysis could not be found."
	msgConflict     = "The analysis is not in a state that allows this action."
	msgRateLimited  = "Too many requests. Please wait a minute before trying again."
	msgServer       = "The analysis service encountered an error. Please try again shortly."
	msgClient       = "The request could not be processed."
	msgUnknown      = "An unexpected error occurred."
	msgJobFailed    = "The analysis failed on the server."
)
