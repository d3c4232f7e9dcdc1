package api

// Common API types and enums

// APIError represents RESTful error response structure
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Common error codes
const (
	ErrorCodeInvalidRequest      = "INVALID_REQUEST"
	ErrorCodeMissingIdentifier   = "MISSING_IDENTIFIER"
	ErrorCodeUnresolvableID      = "UNRESOLVABLE_TRANSACTION_ID"
	ErrorCodeUnsupportedPlatform = "UNSUPPORTED_PLATFORM"
	ErrorCodeNotFound            = "NOT_FOUND"
	ErrorCodePaywall             = "PAYWALL"
	ErrorCodeInternalError       = "INTERNAL_ERROR"
	ErrorCodeValidationFailed    = "VALIDATION_FAILED"
)

// AppStoreMode names how the subscription backend talks to Apple
type AppStoreMode string

const (
	AppStoreModeMock AppStoreMode = "mock"
	AppStoreModeLive AppStoreMode = "live"
)
