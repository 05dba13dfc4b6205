package models

// ErrorType classifies API errors so clients can react without parsing
// messages.
type ErrorType string

const (
	GeneralErrorType         ErrorType = "general"
	ValidationErrorType      ErrorType = "validation"
	NotFoundErrorType        ErrorType = "not_found"
	ConflictErrorType        ErrorType = "conflict"
	DatabaseErrorType        ErrorType = "database"
	ExternalServiceErrorType ErrorType = "external_service"
)

// APIError is the error payload returned by the HTTP API.
type APIError struct {
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
}

// APIResponse is the uniform envelope for all HTTP API responses.
type APIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *APIError   `json:"error,omitempty"`
}
