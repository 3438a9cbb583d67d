// Package common provides shared types and constants used across the
// archfetch client-server communication layer.
package common

// Environment variable names for configuration.
const (
	// SocketPathEnv is the environment variable for custom socket path.
	SocketPathEnv = "ARCHFETCH_SOCKET_PATH"

	// TCPPortEnv is the environment variable for custom TCP port.
	TCPPortEnv = "ARCHFETCH_TCP_PORT"

	// ForceTCPEnv is the environment variable to force TCP connections.
	ForceTCPEnv = "ARCHFETCH_FORCE_TCP"

	// SecretEnv is the environment variable holding the RPC auth token.
	SecretEnv = "ARCHFETCH_RPC_SECRET"
)
