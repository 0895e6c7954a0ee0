// Package secrets resolves upstream credentials for aoai-relay.
//
// The proxy never forwards caller-supplied credentials; every upstream
// call is authenticated with a credential resolved here. Two providers
// are available:
//   - Static: endpoint + API key from configuration or environment
//   - OAuth: endpoint + a bearer token fetched via the OAuth 2.0
//     client-credentials flow (Azure AD style), cached and refreshed by
//     the token source
//
// Credential values never appear in logs or error messages; diagnostics
// expose presence booleans only.
package secrets

import (
	"context"
	"errors"
)

// Header names used to authenticate with the upstream API.
const (
	HeaderAPIKey        = "api-key"
	HeaderAuthorization = "Authorization"
)

// Resolution errors.
var (
	// ErrEndpointMissing is returned when no upstream endpoint is configured.
	ErrEndpointMissing = errors.New("secrets: upstream endpoint is not configured")

	// ErrKeyMissing is returned when no API key or OAuth client secret is configured.
	ErrKeyMissing = errors.New("secrets: upstream credential is not configured")
)

// Credential is a resolved upstream credential: the endpoint to call and
// the header to attach. Value is secret and must never be logged.
type Credential struct {
	Endpoint string
	Header   string
	Value    string
}

// Presence reports which parts of the credential are configured, without
// exposing values. Used by the diagnostics endpoint.
type Presence struct {
	Endpoint bool `json:"endpoint"`
	Key      bool `json:"key"`
}

// Provider resolves upstream credentials. Resolve may fail (missing
// configuration, token endpoint unreachable); callers treat failure as
// an internal error, never as caller fault.
type Provider interface {
	// Resolve returns the credential for the next upstream call.
	Resolve(ctx context.Context) (Credential, error)

	// Presence reports configured/missing state for diagnostics.
	Presence() Presence
}
