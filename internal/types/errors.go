package types

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// Error codes used by the REST API.
const (
	CodeBadRequest      = "REQUEST_400"
	CodeMoldNotFound    = "MOLD_404"
	CodeMoldUnavailable = "MOLD_409"
	CodeMachineNotFound = "MACHINE_404"
	CodeMachineRejected = "MACHINE_409"
	CodeArmNotFound     = "ARM_404"
	CodeOrderInvalid    = "ORDER_400"
	CodeOrderNotFound   = "ORDER_404"
	CodeInternal        = "SERVER_500"
)
