package duplex

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
)

// identifyFrame is the minimal shape read off a worker-attachment
// connection's first message.
type identifyFrame struct {
	Type     string `json:"type"`
	WorkerID string `json:"workerId"`
}

// WorkerAttacher binds an externally-connected worker transport to the
// supervisor state for workerId. send writes one raw frame back to that
// worker. Implemented by *worker.Supervisor; narrowed to an interface here
// to avoid an import cycle.
type WorkerAttacher interface {
	Attach(workerId string, send func(data []byte) error) (onMessage func(data []byte), unbind func())
}

// ServeWorker upgrades r to a WebSocket and runs the worker-attachment
// protocol: the first message must be {"type":"identify","workerId":"..."},
// after which every subsequent message is forwarded verbatim to the bound
// supervisor state. A connection whose first message isn't an identify frame
// is closed.
func (e *Endpoint) ServeWorker(w http.ResponseWriter, r *http.Request, attacher WorkerAttacher) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		e.log.Warn("duplex: failed to accept worker connection", "error", err)
		return
	}
	ctx := r.Context()

	_, data, err := ws.Read(ctx)
	if err != nil {
		ws.Close(websocket.StatusInternalError, "missing identify frame")
		return
	}
	var id identifyFrame
	if err := json.Unmarshal(data, &id); err != nil || id.Type != "identify" || id.WorkerID == "" {
		ws.Close(websocket.StatusPolicyViolation, "expected identify frame")
		return
	}

	send := func(data []byte) error {
		return ws.Write(ctx, websocket.MessageText, data)
	}
	onMessage, unbind := attacher.Attach(id.WorkerID, send)
	defer unbind()

	e.log.Info("duplex: worker attached", "workerId", id.WorkerID)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		onMessage(data)
	}
}
