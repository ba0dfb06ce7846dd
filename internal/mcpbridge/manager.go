package mcpbridge

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// connectedServer holds a live session plus the config it was started with
// and its cached schemas.
type connectedServer struct {
	name      string
	session   *gomcp.ClientSession
	config    ServerConfig
	tools     map[string]ToolSchema
	resources map[string]ResourceSchema
}

// Bridge owns every configured MCP server's connection for the lifetime of
// the process. One Bridge is shared by the whole server; there is no
// per-session state (unlike a conversational agent, namespaces here are
// process-wide, matching how a local tool file's worker is process-wide).
type Bridge struct {
	log *slog.Logger

	mu      sync.RWMutex
	servers map[string]*connectedServer // keyed by sanitised namespace
}

// New creates an empty Bridge.
func New(log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{log: log, servers: make(map[string]*connectedServer)}
}

// StartResult summarizes the outcome of Start.
type StartResult struct {
	// Namespaces lists the sanitised namespaces that came up successfully.
	Namespaces []string
	// Failures maps server name to the error that prevented it from
	// starting. Failed servers are simply absent from the schema set.
	Failures map[string]string
}

// Start launches every enabled server concurrently (a deliberate
// Promise.all-style fan-out), tolerating per-server failure. A server whose
// command is the self-bridge sentinel is skipped. Required servers that
// fail to start cause Start to return an error after every other server has
// had a chance to finish starting.
func (b *Bridge) Start(ctx context.Context, servers map[string]ServerConfig) (*StartResult, error) {
	type outcome struct {
		name   string
		srv    *connectedServer
		err    error
		config ServerConfig
	}

	var enabled []string
	for name, cfg := range servers {
		if !cfg.IsEnabled() {
			continue
		}
		if cfg.isSelfBridge() {
			b.log.Warn("mcpbridge: skipping self-bridge sentinel server", "server", name)
			continue
		}
		enabled = append(enabled, name)
	}

	outcomes := make([]outcome, len(enabled))
	var wg sync.WaitGroup
	for i, name := range enabled {
		wg.Add(1)
		go func(idx int, name string) {
			defer wg.Done()
			cfg := servers[name]
			srv, err := b.connect(ctx, name, cfg)
			outcomes[idx] = outcome{name: name, srv: srv, err: err, config: cfg}
		}(i, name)
	}
	wg.Wait()

	result := &StartResult{Failures: make(map[string]string)}
	b.mu.Lock()
	for _, o := range outcomes {
		if o.err != nil {
			result.Failures[o.name] = o.err.Error()
			b.log.Error("mcpbridge: server failed to start", "server", o.name, "error", o.err)
			continue
		}
		b.servers[Namespace(o.name)] = o.srv
		result.Namespaces = append(result.Namespaces, Namespace(o.name))
	}
	b.mu.Unlock()

	for name, cfg := range servers {
		if cfg.Required && cfg.IsEnabled() && !cfg.isSelfBridge() {
			if errMsg, failed := result.Failures[name]; failed {
				return result, fmt.Errorf("required mcp server %q failed to start: %s", name, errMsg)
			}
		}
	}
	return result, nil
}

// connect spawns or dials one server, completes the handshake, and fetches
// its tool and resource schemas.
func (b *Bridge) connect(ctx context.Context, name string, cfg ServerConfig) (*connectedServer, error) {
	startCtx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout())
	defer cancel()

	client := gomcp.NewClient(&gomcp.Implementation{Name: "lootbox", Version: "1.0.0"}, nil)

	transport, err := b.buildTransport(startCtx, cfg.Transport)
	if err != nil {
		return nil, err
	}

	session, err := client.Connect(startCtx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to mcp server %q: %w", name, err)
	}

	filter := NewToolFilter(cfg.EnabledTools, cfg.DisabledTools)

	toolsResult, err := session.ListTools(startCtx, nil)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("listing tools for mcp server %q: %w", name, err)
	}
	tools := make(map[string]ToolSchema, len(toolsResult.Tools))
	for _, t := range toolsResult.Tools {
		if !filter.Allows(t.Name) {
			continue
		}
		tools[t.Name] = ToolSchema{Name: t.Name, Description: t.Description, InputSchema: schemaToMap(t.InputSchema)}
	}

	resources := make(map[string]ResourceSchema)
	if resourcesResult, err := session.ListResources(startCtx, nil); err == nil {
		for _, r := range resourcesResult.Resources {
			schema, err := newResourceSchema(r.Name, r.Description, r.URI, "")
			if err != nil {
				b.log.Warn("mcpbridge: invalid resource", "server", name, "resource", r.Name, "error", err)
				continue
			}
			resources[r.Name] = schema
		}
	}
	if templatesResult, err := session.ListResourceTemplates(startCtx, nil); err == nil {
		for _, t := range templatesResult.ResourceTemplates {
			schema, err := newResourceSchema(t.Name, t.Description, "", t.URITemplate)
			if err != nil {
				b.log.Warn("mcpbridge: invalid resource template", "server", name, "resource", t.Name, "error", err)
				continue
			}
			resources[t.Name] = schema
		}
	}

	return &connectedServer{name: name, session: session, config: cfg, tools: tools, resources: resources}, nil
}

func (b *Bridge) buildTransport(ctx context.Context, t TransportConfig) (gomcp.Transport, error) {
	switch {
	case t.IsStdio():
		cmd := exec.Command(t.Command, t.Args...)
		for k, v := range t.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &gomcp.CommandTransport{Command: cmd}, nil
	case t.IsHTTP():
		if t.Transport == TransportServerSentEvent {
			return &gomcp.SSEClientTransport{Endpoint: t.URL}, nil
		}
		return &gomcp.StreamableClientTransport{Endpoint: t.URL}, nil
	default:
		return nil, fmt.Errorf("mcp server has neither command nor url configured")
	}
}

// schemaToMap normalizes the SDK's input schema representation into a plain
// map so C3 can fold it into the types document without an SDK dependency.
func schemaToMap(schema interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	if m, ok := schema.(map[string]interface{}); ok {
		return m
	}
	return nil
}

// Tools returns every tool schema across every connected server, keyed by
// namespace.
func (b *Bridge) Tools() map[string][]ToolSchema {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string][]ToolSchema, len(b.servers))
	for ns, srv := range b.servers {
		list := make([]ToolSchema, 0, len(srv.tools))
		for _, t := range srv.tools {
			list = append(list, t)
		}
		out[ns] = list
	}
	return out
}

// Resources returns every resource schema across every connected server,
// keyed by namespace.
func (b *Bridge) Resources() map[string][]ResourceSchema {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string][]ResourceSchema, len(b.servers))
	for ns, srv := range b.servers {
		list := make([]ResourceSchema, 0, len(srv.resources))
		for _, r := range srv.resources {
			list = append(list, r)
		}
		out[ns] = list
	}
	return out
}

// CallTool dispatches a tool call to namespace's underlying server.
func (b *Bridge) CallTool(ctx context.Context, namespace, tool string, args map[string]interface{}) (interface{}, error) {
	srv, err := b.lookup(namespace)
	if err != nil {
		return nil, err
	}
	if _, ok := srv.tools[tool]; !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownResource, namespace, tool)
	}

	callCtx, cancel := context.WithTimeout(ctx, srv.config.CallTimeout())
	defer cancel()

	result, err := srv.session.CallTool(callCtx, &gomcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("mcp tool call %s.%s failed: %w", namespace, tool, err)
	}
	return result, nil
}

// ReadResource resolves resource's uri (substituting args into its
// template if needed) and reads it from namespace's underlying server.
func (b *Bridge) ReadResource(ctx context.Context, namespace, resource string, args map[string]interface{}) (interface{}, error) {
	srv, err := b.lookup(namespace)
	if err != nil {
		return nil, err
	}
	schema, ok := srv.resources[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownResource, namespace, resource)
	}

	uri, err := schema.resolve(args)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, srv.config.CallTimeout())
	defer cancel()

	result, err := srv.session.ReadResource(callCtx, &gomcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, fmt.Errorf("mcp resource read %s.%s failed: %w", namespace, resource, err)
	}
	return result, nil
}

func (b *Bridge) lookup(namespace string) (*connectedServer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	srv, ok := b.servers[namespace]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotConnected, namespace)
	}
	return srv, nil
}

// Close shuts down every connected server session.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, srv := range b.servers {
		if err := srv.session.Close(); err != nil {
			b.log.Warn("mcpbridge: error closing server session", "server", name, "error", err)
		}
	}
	b.servers = make(map[string]*connectedServer)
}
