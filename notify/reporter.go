package notify

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/csmkit/fault"
)

// Reporter turns data-layer failures into operator feedback: every
// reported error becomes a structured log line and an error toast, and
// critical severities escalate to the admin mailbox.
type Reporter struct {
	sink   Sink
	mailer Mailer
	admin  string
	log    zerolog.Logger
	now    func() time.Time
}

// NewReporter wires a reporter. mailer and adminAddr may be empty;
// escalation is then log-only.
func NewReporter(sink Sink, mailer Mailer, adminAddr string, log zerolog.Logger) *Reporter {
	return &Reporter{sink: sink, mailer: mailer, admin: adminAddr, log: log, now: time.Now}
}

// Report surfaces a failure. context names the operation for the log
// and the mail, not for the user.
func (r *Reporter) Report(err error, context string) {
	if err == nil {
		return
	}
	code := fault.CodeOf(err)
	sev := fault.SeverityOf(err)

	r.log.Error().
		Str("code", string(code)).
		Str("severity", string(sev)).
		Str("context", context).
		Err(err).
		Msg("operation failed")

	r.sink.Notify(Notification{
		Title:    titleFor(code),
		Message:  messageFor(code),
		Type:     TypeError,
		Duration: 6 * time.Second,
	})

	if sev == fault.SeverityCritical {
		r.escalate(err, context, code)
	}
}

// Success surfaces a positive outcome as a short toast.
func (r *Reporter) Success(title, message string) {
	r.sink.Notify(Notification{Title: title, Message: message, Type: TypeSuccess, Duration: 3 * time.Second})
}

// Warn surfaces a non-fatal condition, offline mode for instance.
func (r *Reporter) Warn(title, message string) {
	r.sink.Notify(Notification{Title: title, Message: message, Type: TypeWarning, Duration: 5 * time.Second})
}

func (r *Reporter) escalate(err error, context string, code fault.Code) {
	if r.mailer == nil || r.admin == "" {
		r.log.Warn().Str("code", string(code)).Msg("critical failure with no admin mailbox configured")
		return
	}
	subject := "csmkit critical failure: " + string(code)
	body := fmt.Sprintf("Context: %s\nError: %v\nTime: %s\n", context, err, r.now().Format(time.RFC3339))
	if merr := r.mailer.Send(r.admin, subject, body); merr != nil {
		r.log.Error().Err(merr).Msg("admin escalation mail failed")
	}
}

// titleFor and messageFor keep backend codes out of what the user
// reads.
func titleFor(code fault.Code) string {
	switch code {
	case fault.CodeNetwork:
		return "Connection problem"
	case fault.CodeCircuitOpen:
		return "Service paused"
	case fault.CodeConflict:
		return "Save conflict"
	case fault.CodePermission:
		return "No permission"
	case fault.CodeNotFound:
		return "Not found"
	case fault.CodeValidation:
		return "Check your input"
	default:
		return "Something went wrong"
	}
}

func messageFor(code fault.Code) string {
	switch code {
	case fault.CodeNetwork:
		return "We could not reach the server. Your changes are kept on this device and will sync automatically."
	case fault.CodeCircuitOpen:
		return "The server is having trouble, so requests are paused for a moment. Your work is safe."
	case fault.CodeConflict:
		return "Someone else changed this assessment. Reload to pick up their changes."
	case fault.CodePermission:
		return "Your account is not allowed to do that."
	case fault.CodeNotFound:
		return "That record does not exist anymore."
	case fault.CodeValidation:
		return "The entered data is not valid."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
