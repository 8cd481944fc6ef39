// Package authsdk is a small Go client for the oauth2d HTTP API. It
// covers the token grants, the first party login flow including the
// MFA step up, introspection, revocation and the health probes.
package authsdk
