// Package clientsynth builds the generated artifacts scripts and external
// tooling see: the TypeScript types document, the duplex-backed client
// module text, and the per-namespace tool/resource catalogue — folding in
// both locally discovered tool files and bridged MCP servers.
package clientsynth

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jx-codes/lootbox/internal/mcpbridge"
	"github.com/jx-codes/lootbox/internal/toolindex"
	"github.com/jx-codes/lootbox/internal/typeextract"
)

// FunctionView is one callable function as seen by a script.
type FunctionView struct {
	Namespace string
	Name      string
	Param     typeextract.Parameter
	Return    string
	Async     bool
	Doc       typeextract.Doc
}

// NamespaceView is everything the synthesiser knows about one namespace.
type NamespaceView struct {
	Namespace string
	Kind      NamespaceKind
	Meta      *typeextract.NamespaceMetadata
	Functions []FunctionView
	Types     []typeextract.TypeDefinition
}

// NamespaceKind distinguishes a locally discovered namespace from a bridged
// MCP server.
type NamespaceKind int

const (
	KindLocal NamespaceKind = iota
	KindMCP
)

// MCPTools is the subset of *mcpbridge.Bridge the synthesiser reads.
type MCPTools interface {
	Tools() map[string][]mcpbridge.ToolSchema
	Resources() map[string][]mcpbridge.ResourceSchema
}

// Synth builds and caches the generated documents. Safe for concurrent use.
type Synth struct {
	index *toolindex.Index
	mcp   MCPTools

	mu          sync.Mutex
	cachedKey   cacheKey
	cachedTypes string
	cachedClient string
	cachedClientKey cacheKey
}

type cacheKey struct {
	toolVersion uint64
	mcpVersion  uint64
}

// New creates a Synth reading from index and, if non-nil, mcp.
func New(index *toolindex.Index, mcp MCPTools) *Synth {
	return &Synth{index: index, mcp: mcp}
}

// Catalogue returns every namespace's view, sorted by namespace name.
func (s *Synth) Catalogue(mcpVersion uint64) []NamespaceView {
	snap := s.index.Snapshot()
	views := make([]NamespaceView, 0, len(snap.Namespaces))

	for _, name := range snap.SortedNamespaces() {
		entry := snap.Namespaces[name]
		view := NamespaceView{Namespace: name, Kind: KindLocal, Types: entry.Result.Types}
		view.Meta = entry.Result.Meta
		for _, sig := range entry.Result.Signatures {
			view.Functions = append(view.Functions, FunctionView{
				Namespace: name, Name: sig.Name, Param: sig.Param, Return: sig.Return, Async: sig.Async, Doc: sig.Doc,
			})
		}
		views = append(views, view)
	}

	if s.mcp != nil {
		views = append(views, s.mcpViews()...)
	}

	sort.Slice(views, func(i, j int) bool { return views[i].Namespace < views[j].Namespace })
	return views
}

func (s *Synth) mcpViews() []NamespaceView {
	tools := s.mcp.Tools()
	resources := s.mcp.Resources()

	namespaces := map[string]struct{}{}
	for ns := range tools {
		namespaces[ns] = struct{}{}
	}
	for ns := range resources {
		namespaces[ns] = struct{}{}
	}

	var views []NamespaceView
	for ns := range namespaces {
		view := NamespaceView{Namespace: ns, Kind: KindMCP}
		for _, t := range tools[ns] {
			view.Functions = append(view.Functions, FunctionView{
				Namespace: ns, Name: t.Name,
				Param:  typeextract.Parameter{Name: "args", Type: "Record<string, unknown>"},
				Return: "unknown",
				Doc:    typeextract.Doc{Description: t.Description},
			})
		}
		for _, r := range resources[ns] {
			view.Functions = append(view.Functions, FunctionView{
				Namespace: ns, Name: mcpbridge.ResourceFunctionName(r.Name),
				Param:  typeextract.Parameter{Name: "args", Type: resourceArgsType(r)},
				Return: "unknown",
				Doc:    typeextract.Doc{Description: r.Description},
			})
		}
		sort.Slice(view.Functions, func(i, j int) bool { return view.Functions[i].Name < view.Functions[j].Name })
		views = append(views, view)
	}
	return views
}

func resourceArgsType(r mcpbridge.ResourceSchema) string {
	if !r.IsTemplate() || len(r.Vars) == 0 {
		return "Record<string, unknown>"
	}
	fields := make([]string, 0, len(r.Vars))
	for _, v := range r.Vars {
		fields = append(fields, fmt.Sprintf("%s: string", v))
	}
	return "{ " + strings.Join(fields, "; ") + " }"
}

// TypesDocument renders every namespace's record types and function
// signatures as TypeScript, grouped by namespace. A type name that collides
// across two namespaces is disambiguated by prefixing the namespace name
// (capitalized) onto the second and subsequent occurrences.
func (s *Synth) TypesDocument(mcpVersion uint64) string {
	s.mu.Lock()
	key := cacheKey{toolVersion: s.index.Snapshot().Version, mcpVersion: mcpVersion}
	if key == s.cachedKey && s.cachedTypes != "" {
		defer s.mu.Unlock()
		return s.cachedTypes
	}
	s.mu.Unlock()

	views := s.Catalogue(mcpVersion)
	seenTypeNames := map[string]string{} // type name -> owning namespace

	var buf strings.Builder
	for _, view := range views {
		buf.WriteString("namespace " + view.Namespace + " {\n")
		for _, td := range view.Types {
			renderName := td.Name
			if owner, ok := seenTypeNames[td.Name]; ok && owner != view.Namespace {
				renderName = capitalize(view.Namespace) + td.Name
			} else {
				seenTypeNames[td.Name] = view.Namespace
			}
			writeTypeDefinition(&buf, renderName, td)
		}
		for _, fn := range view.Functions {
			writeFunctionDoc(&buf, fn)
			buf.WriteString(fmt.Sprintf("  function %s(args: %s): %s;\n", fn.Name, orUnknown(fn.Param.Type), orVoid(fn.Return)))
		}
		buf.WriteString("}\n\n")
	}

	result := buf.String()
	s.mu.Lock()
	s.cachedKey = key
	s.cachedTypes = result
	s.mu.Unlock()
	return result
}

// TypesDocumentFor renders the types document restricted to the given
// namespace names, preserving their relative order from the full catalogue.
func (s *Synth) TypesDocumentFor(mcpVersion uint64, namespaces []string) string {
	wanted := make(map[string]struct{}, len(namespaces))
	for _, n := range namespaces {
		wanted[n] = struct{}{}
	}

	views := s.Catalogue(mcpVersion)
	seenTypeNames := map[string]string{}

	var buf strings.Builder
	for _, view := range views {
		if _, ok := wanted[view.Namespace]; !ok {
			continue
		}
		buf.WriteString("namespace " + view.Namespace + " {\n")
		for _, td := range view.Types {
			renderName := td.Name
			if owner, ok := seenTypeNames[td.Name]; ok && owner != view.Namespace {
				renderName = capitalize(view.Namespace) + td.Name
			} else {
				seenTypeNames[td.Name] = view.Namespace
			}
			writeTypeDefinition(&buf, renderName, td)
		}
		for _, fn := range view.Functions {
			writeFunctionDoc(&buf, fn)
			buf.WriteString(fmt.Sprintf("  function %s(args: %s): %s;\n", fn.Name, orUnknown(fn.Param.Type), orVoid(fn.Return)))
		}
		buf.WriteString("}\n\n")
	}
	return buf.String()
}

func writeTypeDefinition(buf *strings.Builder, name string, td typeextract.TypeDefinition) {
	buf.WriteString("  interface " + name + " {\n")
	for _, p := range td.Properties {
		if p.Doc != "" {
			buf.WriteString("    // " + p.Doc + "\n")
		}
		opt := ""
		if p.Optional {
			opt = "?"
		}
		buf.WriteString(fmt.Sprintf("    %s%s: %s;\n", p.Name, opt, orUnknown(p.Type)))
	}
	buf.WriteString("  }\n")
}

func writeFunctionDoc(buf *strings.Builder, fn FunctionView) {
	if fn.Doc.Description == "" && fn.Doc.Returns == "" {
		return
	}
	buf.WriteString("  /**\n")
	if fn.Doc.Description != "" {
		for _, line := range strings.Split(fn.Doc.Description, "\n") {
			buf.WriteString("   * " + line + "\n")
		}
	}
	if fn.Doc.Returns != "" {
		buf.WriteString("   * @returns " + fn.Doc.Returns + "\n")
	}
	buf.WriteString("   */\n")
}

func orUnknown(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}

func orVoid(t string) string {
	if t == "" {
		return "void"
	}
	return t
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ClientModuleText renders the `tools` binding scripts import: one method
// per namespace.function, each a thin duplex call keyed by namespace and
// function name. baseURL is the duplex endpoint scripts dial to issue calls.
func (s *Synth) ClientModuleText(mcpVersion uint64, baseURL string) string {
	s.mu.Lock()
	key := cacheKey{toolVersion: s.index.Snapshot().Version, mcpVersion: mcpVersion}
	if key == s.cachedClientKey && s.cachedClient != "" {
		defer s.mu.Unlock()
		return s.cachedClient
	}
	s.mu.Unlock()

	views := s.Catalogue(mcpVersion)

	var buf strings.Builder
	buf.WriteString("const __lootboxEndpoint = " + fmt.Sprintf("%q", baseURL) + ";\n\n")
	buf.WriteString(clientRuntimeHelper)
	buf.WriteString("\nexport const tools = {\n")
	for _, view := range views {
		buf.WriteString("  " + view.Namespace + ": {\n")
		for _, fn := range view.Functions {
			buf.WriteString(fmt.Sprintf("    %s: (args) => __lootboxCall(%q, %q, args),\n", fn.Name, view.Namespace, fn.Name))
		}
		buf.WriteString("  },\n")
	}
	buf.WriteString("};\n")

	result := buf.String()
	s.mu.Lock()
	s.cachedClient = result
	s.cachedClientKey = key
	s.mu.Unlock()
	return result
}

// clientRuntimeHelper is the fixed runtime glue every generated client
// module embeds: a single duplex connection, established lazily on first
// call and shared by every subsequent one (single-flight via the module's
// own top-level await/promise caching).
const clientRuntimeHelper = `let __lootboxSocketPromise = null;

function __lootboxConnect() {
  if (!__lootboxSocketPromise) {
    __lootboxSocketPromise = new Promise((resolve, reject) => {
      const ws = new WebSocket(__lootboxEndpoint);
      ws.addEventListener("open", () => resolve(ws));
      ws.addEventListener("error", (err) => reject(err));
      ws.addEventListener("close", __lootboxHandleDisconnect);
      ws.addEventListener("error", __lootboxHandleDisconnect);
    });
  }
  return __lootboxSocketPromise;
}

let __lootboxSeq = 0;
const __lootboxPending = new Map();
const __lootboxCallTimeoutMs = 30000;

// A closed or errored socket fails every outstanding call and drops the
// cached connection so the next call reconnects from scratch.
function __lootboxHandleDisconnect() {
  __lootboxSocketPromise = null;
  for (const pending of __lootboxPending.values()) {
    clearTimeout(pending.timeoutHandle);
    pending.reject(new Error("WebSocket disconnected"));
  }
  __lootboxPending.clear();
}

async function __lootboxCall(namespace, fn, args) {
  const ws = await __lootboxConnect();
  const id = String(++__lootboxSeq);
  const frame = { type: "call", id, namespace, function: fn, args };
  return new Promise((resolve, reject) => {
    function handler(ev) {
      const msg = JSON.parse(ev.data);
      if (msg.id !== id) return;
      ws.removeEventListener("message", handler);
      __lootboxPending.delete(id);
      clearTimeout(timeoutHandle);
      if (msg.error) reject(new Error(msg.error));
      else resolve(msg.result);
    }
    const timeoutHandle = setTimeout(() => {
      ws.removeEventListener("message", handler);
      __lootboxPending.delete(id);
      reject(new Error(` + "`RPC timeout: ${namespace}.${fn}`" + `));
    }, __lootboxCallTimeoutMs);

    __lootboxPending.set(id, { resolve, reject, timeoutHandle });
    ws.addEventListener("message", handler);
    ws.send(JSON.stringify(frame));
  });
}
`
