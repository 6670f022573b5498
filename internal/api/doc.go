// Package api implements the HTTP surface: account registration and login,
// the token refresh lifecycle, profile management, channel profiles,
// subscriptions, and watch history. Every response uses the same JSON
// envelope with statusCode, data, message, and success fields.
package api
