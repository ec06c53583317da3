package unibus

import (
	"encoding/json"
	"fmt"
)

type Error string

func (err Error) Error() string {
	return string(err)
}

const (
	// ErrNoValue means the service answered without the requested value.
	ErrNoValue   Error = "no value in response"
	ErrMalformed Error = "malformed response"
)

// ServiceError is a non-2xx answer from the service.
type ServiceError struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
}

func (err ServiceError) Error() string {
	data, _ := json.Marshal(&err)
	return fmt.Sprintf("unibus: %s", data)
}
