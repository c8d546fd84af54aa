package userhandler

// ErrorResponse is returned for failures.
type ErrorResponse struct {
	Error string `json:"error" example:"registry unavailable"`
}
