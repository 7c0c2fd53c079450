// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested workflow is not being observed and
// has no archived history.
var ErrNotFound = errors.New("not found")

// ErrNoEndpoint indicates a connect command without a transport endpoint.
var ErrNoEndpoint = errors.New("endpoint is required")
