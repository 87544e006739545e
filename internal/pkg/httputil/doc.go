// Package httputil provides the JSON response helpers shared by the admin
// API handlers, so every endpoint answers with the same envelope.
package httputil
