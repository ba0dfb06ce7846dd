package duplex

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Catalogue is the subset of *clientsynth.Synth the HTTP surface reads.
type Catalogue interface {
	TypesDocument(mcpVersion uint64) string
	TypesDocumentFor(mcpVersion uint64, namespaces []string) string
	ClientModuleText(mcpVersion uint64, baseURL string) string
}

// HTTPServer wires the read-only discovery endpoints onto a mux. It holds
// no request-scoped state; every handler reads straight from the supplied
// catalogue and function lister.
type HTTPServer struct {
	catalogue  Catalogue
	functions  FunctionLister
	mcpVersion func() uint64
	baseURL    string
}

// NewHTTPServer creates the discovery surface. mcpVersion lets the cache key
// used by Catalogue track MCP server reconnects even though HTTPServer
// itself holds no MCP state.
func NewHTTPServer(catalogue Catalogue, functions FunctionLister, mcpVersion func() uint64, baseURL string) *HTTPServer {
	return &HTTPServer{catalogue: catalogue, functions: functions, mcpVersion: mcpVersion, baseURL: baseURL}
}

// Register mounts every discovery endpoint plus the client-facing and
// worker-attachment WebSocket paths onto mux. attacher may be nil, in which
// case /worker is not registered (e.g. a deployment where every worker is a
// local stdio-attached subprocess and never dials back over the network).
func (h *HTTPServer) Register(mux *http.ServeMux, endpoint *Endpoint, attacher WorkerAttacher) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/namespaces", h.handleNamespaces)
	mux.HandleFunc("/types", h.handleTypes)
	mux.HandleFunc("/types/", h.handleTypesFiltered)
	mux.HandleFunc("/client.ts", h.handleClientModule)
	mux.HandleFunc("/openapi.json", h.handleOpenAPI)
	mux.HandleFunc("/doc", h.handleDoc)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		endpoint.ServeClient(w, r, h.functions)
	})
	if attacher != nil {
		mux.HandleFunc("/worker", func(w http.ResponseWriter, r *http.Request) {
			endpoint.ServeWorker(w, r, attacher)
		})
	}
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPServer) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"namespaces": h.functions()})
}

func (h *HTTPServer) handleTypes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(h.catalogue.TypesDocument(h.mcpVersion())))
}

func (h *HTTPServer) handleTypesFiltered(w http.ResponseWriter, r *http.Request) {
	list := strings.TrimPrefix(r.URL.Path, "/types/")
	if list == "" {
		h.handleTypes(w, r)
		return
	}
	namespaces := strings.Split(list, ",")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(h.catalogue.TypesDocumentFor(h.mcpVersion(), namespaces)))
}

func (h *HTTPServer) handleClientModule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/typescript; charset=utf-8")
	w.Write([]byte(h.catalogue.ClientModuleText(h.mcpVersion(), h.baseURL)))
}

func (h *HTTPServer) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc := map[string]interface{}{
		"openapi": "3.0.3",
		"info":    map[string]string{"title": "lootbox", "version": "1.0.0"},
		"paths": map[string]interface{}{
			"/ws": map[string]interface{}{
				"description": "WebSocket endpoint for submitting namespaced calls; see /types for the callable surface.",
			},
		},
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *HTTPServer) handleDoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("lootbox discovery surface: /health /namespaces /types /types/{list} /client.ts /openapi.json /ws\n"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
