// Package http contains the HTTP transport layer for the license
// issuer service: request decoding and validation, routing of the
// public and API-key-gated endpoints, and mapping of service errors to
// the wire taxonomy.
package http
