// Package app provides application initialization and lifecycle
// management for the license issuer service. It wires configuration,
// logging, observability, the license store, and the HTTP server
// together at startup with dependency injection, and handles graceful
// shutdown on SIGINT and SIGTERM.
//
// The typical initialization sequence:
//
//	1. Load configuration from the YAML file and TBOT_ environment
//	2. Initialize logging and OpenTelemetry
//	3. Open the SQLite license store and derive the signing key
//	4. Create the issuer service and HTTP handlers
//	5. Configure and start the HTTP server
//
// Initialization errors are returned to the caller; the package never
// calls os.Exit() itself.
package app
