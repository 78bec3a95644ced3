package models

// EnvelopeStatusSuccess marks a successful backend response
const EnvelopeStatusSuccess = "success"

// Envelope is the {status, data} wrapper every backend service responds with
type Envelope[T any] struct {
	Status  string `json:"status"`
	Data    *T     `json:"data"`
	Message string `json:"message,omitempty"`
}

// Succeeded reports whether the envelope is a success with a payload
func (e *Envelope[T]) Succeeded() bool {
	return e != nil && e.Status == EnvelopeStatusSuccess && e.Data != nil
}

// LoginResult is the payload of a successful login
type LoginResult struct {
	Token string    `json:"token"`
	User  *Identity `json:"user,omitempty"`
}
