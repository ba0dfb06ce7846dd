// Package mcpbridge spawns configured MCP servers as additional namespaces,
// fetches their tool and resource schemas, and proxies calls into them.
package mcpbridge

import "time"

// Default timeout for initializing an MCP server and listing its schemas.
const DefaultStartupTimeout = 10 * time.Second

// Default timeout for an individual tool call or resource read, per spec.
const DefaultCallTimeout = 30 * time.Second

// selfBridgeSentinel is the literal command that identifies a server
// configured to bridge back into this same process. Such a server is
// skipped at startup to prevent recursive self-connection.
const selfBridgeSentinel = "__lootbox_self__"

// TransportKind selects how an HTTP-based server is reached. Stdio servers
// do not set this field.
type TransportKind string

const (
	TransportStreamingHTTP   TransportKind = "streaming-http"
	TransportServerSentEvent TransportKind = "server-sent-events"
)

// TransportConfig describes how to reach one MCP server: either spawn a
// child process communicating over stdio, or connect to a URL.
type TransportConfig struct {
	// Stdio transport.
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// HTTP transport.
	URL       string            `yaml:"url,omitempty"`
	Transport TransportKind     `yaml:"transport,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// IsStdio reports whether this config spawns a child process.
func (t *TransportConfig) IsStdio() bool { return t.Command != "" }

// IsHTTP reports whether this config connects over HTTP.
func (t *TransportConfig) IsHTTP() bool { return t.URL != "" }

// ServerConfig is one entry under the configuration file's mcp_servers map.
type ServerConfig struct {
	Transport TransportConfig `yaml:"transport"`

	// Enabled defaults to true when nil.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Required makes initialization failure for this server fatal at
	// startup instead of merely omitting it from the schema set.
	Required bool `yaml:"required,omitempty"`

	StartupTimeoutSec *int `yaml:"startup_timeout_sec,omitempty"`
	CallTimeoutSec    *int `yaml:"call_timeout_sec,omitempty"`

	EnabledTools  []string `yaml:"enabled_tools,omitempty"`
	DisabledTools []string `yaml:"disabled_tools,omitempty"`
}

// IsEnabled reports whether this server config is enabled (default true).
func (c *ServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// StartupTimeout returns the configured or default startup timeout.
func (c *ServerConfig) StartupTimeout() time.Duration {
	if c.StartupTimeoutSec != nil {
		return time.Duration(*c.StartupTimeoutSec) * time.Second
	}
	return DefaultStartupTimeout
}

// CallTimeout returns the configured or default call timeout.
func (c *ServerConfig) CallTimeout() time.Duration {
	if c.CallTimeoutSec != nil {
		return time.Duration(*c.CallTimeoutSec) * time.Second
	}
	return DefaultCallTimeout
}

// isSelfBridge reports whether this server's command is the sentinel that
// would otherwise cause the bridge to spawn itself.
func (c *ServerConfig) isSelfBridge() bool {
	return c.Transport.Command == selfBridgeSentinel
}

// ToolFilter controls which tools of a server are exposed. A tool passes if
// (1) Enabled is nil or the tool is listed in it, and (2) the tool is not
// listed in Disabled.
type ToolFilter struct {
	Enabled  map[string]bool
	Disabled map[string]bool
}

// NewToolFilter builds a ToolFilter from allow/deny lists.
func NewToolFilter(enabled, disabled []string) ToolFilter {
	var allow map[string]bool
	if len(enabled) > 0 {
		allow = make(map[string]bool, len(enabled))
		for _, t := range enabled {
			allow[t] = true
		}
	}
	deny := make(map[string]bool, len(disabled))
	for _, t := range disabled {
		deny[t] = true
	}
	return ToolFilter{Enabled: allow, Disabled: deny}
}

// Allows reports whether name passes the filter.
func (f *ToolFilter) Allows(name string) bool {
	if f.Enabled != nil && !f.Enabled[name] {
		return false
	}
	return !f.Disabled[name]
}
