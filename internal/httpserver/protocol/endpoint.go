// Package protocol describes how endpoint groups register with the server.
package protocol

import "net/http"

// EndpointRoute is one method+path handled by an endpoint group.
type EndpointRoute struct {
	Method  string
	Path    string
	Handler http.Handler
}

// Endpoint is a named group of routes that can be enabled by key.
type Endpoint interface {
	Name() string
	Routes() []EndpointRoute
}
