package models

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// Error codes returned in APIResponse.Code.
const (
	CodeNotFound              = "NotFound"
	CodeInvalidInput          = "InvalidInput"
	CodeInvalidBirthdayFormat = "InvalidBirthdayFormat"
	CodeUnauthorized          = "Unauthorized"
	CodeForbidden             = "Forbidden"
	CodePayloadTooLarge       = "PayloadTooLarge"
	CodeInternal              = "Internal"
)

func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response with a machine-readable code.
func NewErrorResponse(code, message string) APIResponse {
	return APIResponse{
		Success: false,
		Code:    code,
		Error:   message,
	}
}

// NewValidationErrorResponse creates an error response listing the offending fields.
func NewValidationErrorResponse(errors map[string]string) APIResponse {
	return APIResponse{
		Success: false,
		Code:    CodeInvalidInput,
		Error:   "Validation failed",
		Errors:  errors,
	}
}
