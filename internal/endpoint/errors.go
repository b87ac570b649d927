package endpoint

import "fmt"

// ConnectionError is a transport or auth failure against one store.
// Fatal for the current call, safe to retry later.
type ConnectionError struct {
	Side     Side
	Endpoint Endpoint
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection failed (%s): %v", e.Side, e.Endpoint.Describe(), e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NotFoundError reports an absent table or schema. Surfaced verbatim
// to the operator, never retried automatically.
type NotFoundError struct {
	Side       Side
	Kind       string // "table" or "schema"
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found on %s side", e.Kind, e.Identifier, e.Side)
}

// InvalidKeyColumnError reports a key column that is absent from one
// side or not orderable. Raised before any data movement.
type InvalidKeyColumnError struct {
	Column string
	Side   Side
	Reason string
}

func (e *InvalidKeyColumnError) Error() string {
	return fmt.Sprintf("key column %q unusable on %s side: %s", e.Column, e.Side, e.Reason)
}
