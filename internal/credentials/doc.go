// Package credentials persists the Google OAuth credential under the same
// keys a browser session would use and answers expiry-aware validity checks.
package credentials
