// Package models holds the JSON documents exchanged between the parcours
// client and the backend. Field names follow the backend's camelCase wire
// format.
package models

// Envelope is the {data: ...} wrapper every backend response uses.
type Envelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// ErrorBody is the JSON shape of a non-2xx response.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Page carries list pagination as echoed by the backend.
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}
