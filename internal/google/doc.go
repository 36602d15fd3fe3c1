// Package google implements the credential provider: interactive login,
// silent token refresh and reconnect against Google's OAuth 2.0 endpoints,
// plus the userinfo profile lookup that identifies an account.
//
// The provider performs network calls only. It never reads or writes the
// account store; callers persist the accounts it returns.
package google
