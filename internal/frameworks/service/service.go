// Package service defines the contract for HTTP services mounted by the server.
package service

import "net/http"

// Service is an HTTP service mounted under /api/<Prefix>.
type Service interface {
	Handler() http.Handler
	Prefix() string
	Close() error
}
