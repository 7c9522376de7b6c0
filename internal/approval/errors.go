package approval

import "errors"

// Gate outcomes. All four are recoverable within the conversation: the model
// is expected to ask again or explain.
var (
	ErrMissingThread        = errors.New("no thread context for a confirmed action")
	ErrConfirmationRequired = errors.New("confirmation required: call askForConfirmation first")
	ErrAwaitingApproval     = errors.New("confirmation requested but not yet approved by the user")
	ErrParamMismatch        = errors.New("approved parameters do not match this call")
)

// Error codes reported to the model in tool results.
const (
	CodeMissingThread        = "MISSING_THREAD"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeAwaitingApproval     = "AWAITING_APPROVAL"
	CodeParamMismatch        = "PARAM_MISMATCH"
)

// Code maps a gate error to its code, or "" for anything else.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMissingThread):
		return CodeMissingThread
	case errors.Is(err, ErrConfirmationRequired):
		return CodeConfirmationRequired
	case errors.Is(err, ErrAwaitingApproval):
		return CodeAwaitingApproval
	case errors.Is(err, ErrParamMismatch):
		return CodeParamMismatch
	}
	return ""
}
