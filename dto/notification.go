package dto

type NotificationPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

type TokenFailure struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

type MulticastResult struct {
	SuccessCount int            `json:"successCount"`
	FailureCount int            `json:"failureCount"`
	Failures     []TokenFailure `json:"failures,omitempty"`
}
