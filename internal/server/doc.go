// Package server wires the API handlers into an http.Server with routing,
// request IDs, logging, CORS, rate limiting, and hardening headers.
package server
