package mcpbridge

import (
	"errors"
	"fmt"
)

var (
	// ErrServerNotConnected is returned when a call targets a server that
	// failed to initialize or was never configured.
	ErrServerNotConnected = errors.New("mcp server not connected")

	// ErrUnknownResource is returned when a resource read or a tool call
	// targets a name the server did not advertise.
	ErrUnknownResource = errors.New("mcp resource not found")
)

func missingResourceVarError(resource, name string) error {
	return fmt.Errorf("mcp resource %q: missing template variable %q", resource, name)
}

func fmtSprint(v interface{}) string {
	return fmt.Sprint(v)
}
