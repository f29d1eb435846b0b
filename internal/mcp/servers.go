package mcp

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// ID is the identifier for this server. Must be unique within a single
	// [Executor]. Used in tool instructions, log messages, and errors.
	ID string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable path (and optional arguments) used when
	// Transport is "stdio".
	// Example: "/usr/local/bin/mcp-notes-server --root /srv/notes"
	// Ignored for streamable-http transport.
	Command string

	// URL is the endpoint address used when Transport is "streamable-http".
	// Example: "https://tools.example.com/mcp"
	// Ignored for stdio transport.
	URL string

	// Env holds additional environment variables injected into the server
	// process when Transport is "stdio". May be nil.
	Env map[string]string
}
