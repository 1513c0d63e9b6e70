// Package providers contains the generic OAuth2 authorization-code client
// shared by provider implementations such as providers/hubspot.
package providers
