package types

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// Outcome is the final classified result of a run. Exactly one is produced
// per run and it alone decides the notification text.
type Outcome string

const (
	OutcomeSuccess                Outcome = "success"
	OutcomeUncertain              Outcome = "uncertain"
	OutcomeRenewControlNotFound   Outcome = "renew_control_not_found"
	OutcomeConfirmControlNotFound Outcome = "confirm_control_not_found"
	OutcomeNotNeeded              Outcome = "not_needed"
	OutcomeInfoNotFound           Outcome = "info_not_found"
	OutcomeFormNotFound           Outcome = "form_not_found"
	OutcomeLoginFailed            Outcome = "login_failed"
	OutcomeNavigationFailed       Outcome = "navigation_failed"
	OutcomeFailed                 Outcome = "failed"
)

// Class groups outcomes into the user-visible message classes.
type Class string

const (
	ClassLoginFailure Class = "login_failure"
	ClassNoInfo       Class = "no_info"
	ClassNotNeeded    Class = "not_needed"
	ClassRenewal      Class = "renewal"
	ClassError        Class = "error"
)

// Class returns the message class the outcome belongs to.
func (o Outcome) Class() Class {
	switch o {
	case OutcomeFormNotFound, OutcomeLoginFailed, OutcomeNavigationFailed:
		return ClassLoginFailure
	case OutcomeInfoNotFound:
		return ClassNoInfo
	case OutcomeNotNeeded:
		return ClassNotNeeded
	case OutcomeSuccess, OutcomeUncertain, OutcomeRenewControlNotFound, OutcomeConfirmControlNotFound:
		return ClassRenewal
	default:
		return ClassError
	}
}

// IsFailure reports whether the run should be treated as failed by the
// process exit code. Uncertain and control-not-found are reported but not failures.
func (o Outcome) IsFailure() bool {
	c := o.Class()
	return c == ClassLoginFailure || c == ClassError
}

// Credentials are the account credentials. They are never logged.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) String() string {
	return "Credentials{[redacted]}"
}

func (c Credentials) GoString() string {
	return c.String()
}

// MarshalLogObject keeps the password out of structured logs.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("username_set", c.Username != "")
	enc.AddBool("password_set", c.Password != "")
	return nil
}

// SubscriptionSnapshot is the result of scanning the server list for one machine.
type SubscriptionSnapshot struct {
	MachineID string `json:"machine_id"`
	DaysLeft  int    `json:"days_left"`
	Found     bool   `json:"found"`
}

// Report describes one finished run
type Report struct {
	RunID      string
	MachineID  string
	Outcome    Outcome
	DaysLeft   int
	HasDays    bool
	Message    string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}
