package tools

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Result error codes beyond the approval gate codes.
const (
	CodeExecutionFailed  = "EXECUTION_FAILED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeToolFailed       = "TOOL_FAILED"
)

// ExecutionError wraps a grid or thread store failure that happened after a
// confirmation was consumed.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsExecutionError reports whether err carries an ExecutionError.
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}

// Failure is the structured result returned to the model when a tool cannot
// do what was asked.
type Failure struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// FailureResult encodes a failure for the model.
func FailureResult(code, message string) string {
	return encode(Failure{ErrorCode: code, Message: message})
}

// DecodeFailure parses a tool result and reports whether it is a failure.
func DecodeFailure(result string) (Failure, bool) {
	var f struct {
		Success   *bool  `json:"success"`
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal([]byte(result), &f); err != nil || f.Success == nil || *f.Success {
		return Failure{}, false
	}
	return Failure{ErrorCode: f.ErrorCode, Message: f.Message}, true
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error_code":%q,"message":%q}`, CodeToolFailed, err.Error())
	}
	return string(data)
}
