// Package oauth manages the Google sign-in session used by the Sheets API
// transport: authorization-code exchange, refresh-token renewal, profile
// lookup via userinfo with id_token claims as fallback, and sign-out.
//
// Session satisfies sheets.CredentialSource.
package oauth
