// Package identity resolves handshake credentials to a tenant-scoped identity.
//
// The collaboration core never issues credentials; issuance lives in the
// platform's auth service. This package only answers one question: given a
// bearer credential presented at the websocket handshake, who is connecting,
// for which tenant, in which role, and (for client-role users) for which
// customer scope.
package identity
