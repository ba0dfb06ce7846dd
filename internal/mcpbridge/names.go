package mcpbridge

// NamespacePrefix is prepended to a sanitised server name to form the
// namespace scripts see. This is the one place a local tool and an MCP tool
// can be told apart, and collisions with local namespace names are
// prevented simply by the prefix always being present.
const NamespacePrefix = "mcp_"

// ResourcePrefix is prepended to a resource's name to form the synthesized
// function name that reads it (resource_<name>).
const ResourcePrefix = "resource_"

// SanitizeServerName replaces every character outside [A-Za-z0-9_] with an
// underscore, per spec.
func SanitizeServerName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// Namespace returns the namespace a script uses to address server.
func Namespace(serverName string) string {
	return NamespacePrefix + SanitizeServerName(serverName)
}

// IsNamespace reports whether namespace addresses an MCP server.
func IsNamespace(namespace string) bool {
	return len(namespace) > len(NamespacePrefix) && namespace[:len(NamespacePrefix)] == NamespacePrefix
}

// ResourceFunctionName returns the synthesized function name for reading
// a resource.
func ResourceFunctionName(resourceName string) string {
	return ResourcePrefix + resourceName
}

// IsResourceOperation reports whether operation addresses a resource read
// rather than a tool call, and returns the bare resource name.
func IsResourceOperation(operation string) (resourceName string, ok bool) {
	if len(operation) > len(ResourcePrefix) && operation[:len(ResourcePrefix)] == ResourcePrefix {
		return operation[len(ResourcePrefix):], true
	}
	return "", false
}
