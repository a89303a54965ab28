// Package common contains shared constants and sentinel errors used across
// coursekeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// AuthorizationHeaderName is the HTTP header carrying "Bearer <token>".
const AuthorizationHeaderName = "Authorization"
