// Package mailing prepares outgoing HTML for engagement tracking: links are
// routed through the click endpoint, a hidden honeypot link is added for
// scanner detection, and an open pixel is appended.
package mailing
