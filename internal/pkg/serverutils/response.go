package serverutils

// ApiResponse is the envelope every JSON endpoint returns.
type ApiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func SuccessResponse(message string, data interface{}) *ApiResponse {
	return &ApiResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(message string, errs interface{}) *ApiResponse {
	return &ApiResponse{
		Success: false,
		Message: message,
		Errors:  errs,
	}
}
