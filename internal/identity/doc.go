// Package identity is the boundary to the external identity provider. The
// provider owns sign-in and sessions; this package verifies the session
// tokens it issues, authenticates and decodes its webhooks, and calls its
// REST API to send dashboard invitations.
package identity
