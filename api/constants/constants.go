package constants

// Common error messages
const (
	ErrInvalidSession      = "invalid user_id or session"
	ErrInvalidJSON         = "invalid json or missing fields"
	ErrInvalidJSONRequired = "invalid json or missing required fields"
	ErrUserIDRequired      = "user_id required"
	ErrDB                  = "DB error"
	ErrInvalidRequestBody  = "Invalid request body"
	ErrPleaseLogin         = "Please login to continue."
	ErrMethodNotAllowed    = "Method Not Allowed"
)

// Content Types
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "Content-Type"
)

// Date formats
const (
	DateTimeFormat = "2006-01-02 15:04:05"
	DateFormat     = "2006-01-02"
)
