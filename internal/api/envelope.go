package api

import (
	"time"

	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

// Envelope is the uniform tool response shape. Every tool call returns it,
// success or failure, so clients parse one structure.
type Envelope struct {
	Status    string                 `json:"status"`
	Success   bool                   `json:"success"`
	Message   string                 `json:"message,omitempty"`
	Data      interface{}            `json:"data,omitempty"`
	ErrorCode models.ErrorCode       `json:"error_code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
	// statusPartial marks operations that succeeded with warnings the
	// caller should read
	statusPartial = "partial"
)

func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// successEnvelope wraps a result payload
func successEnvelope(message string, data interface{}) Envelope {
	return Envelope{
		Status:    statusSuccess,
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: stamp(),
	}
}

// partialEnvelope wraps a result that carries warnings
func partialEnvelope(message string, data interface{}, warnings []string) Envelope {
	env := Envelope{
		Status:    statusPartial,
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: stamp(),
	}
	if len(warnings) > 0 {
		env.Details = map[string]interface{}{"warnings": warnings}
	}
	return env
}

// errorEnvelope maps a domain error onto the wire shape. Non-AppError
// causes collapse to INTERNAL_ERROR without leaking internals.
func errorEnvelope(err error, correlationID string) Envelope {
	env := Envelope{
		Status:    statusError,
		Success:   false,
		Timestamp: stamp(),
	}
	if appErr, ok := models.AsAppError(err); ok {
		env.ErrorCode = appErr.Code
		env.Message = appErr.Message
		env.Details = appErr.Details
	} else {
		env.ErrorCode = models.ErrCodeInternal
		env.Message = "internal error"
	}
	if correlationID != "" {
		if env.Details == nil {
			env.Details = map[string]interface{}{}
		}
		env.Details["correlation_id"] = correlationID
	}
	return env
}
