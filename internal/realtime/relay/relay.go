package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"meditrack/internal/contracts"
	"meditrack/internal/logger"

	"github.com/gorilla/websocket"
)

// Relay is the websocket hub mounted at /ws. It keeps no history: every
// inbound event is rebroadcast to the other connected peers and forgotten.
type Relay struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[*peer]struct{}
}

// peer wraps one websocket connection. Writes are serialized per connection.
type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) send(env contracts.WSEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// New constructs an empty relay.
func New(log *logger.Logger) *Relay {
	return &Relay{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the channel carries no credentials, any origin may join
			CheckOrigin: func(*http.Request) bool { return true },
		},
		peers: make(map[*peer]struct{}),
	}
}

// PeerCount reports how many sockets are currently registered.
func (r *Relay) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Close drops every connected peer.
func (r *Relay) Close() {
	r.mu.Lock()
	peers := make([]*peer, 0, len(r.peers))
	for p := range r.peers {
		peers = append(peers, p)
	}
	r.peers = make(map[*peer]struct{})
	r.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.Close()
	}
}

// Handle upgrades the request and serves the peer until its socket dies.
func (r *Relay) Handle(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Error(req.Context(), "ws_upgrade_failed", "Failed to upgrade websocket connection", err, nil)
		return
	}

	p := &peer{conn: conn}
	r.register(p)

	if err := p.send(contracts.WSEnvelope{
		Type:    contracts.EventConnection,
		Message: "Connected to MediTrack emergency channel",
	}); err != nil {
		r.unregister(p)
		r.log.Error(req.Context(), "ws_ack_failed", "Failed to send connection acknowledgement", err, nil)
		return
	}

	r.log.Info(req.Context(), "ws_peer_connected", "Realtime peer connected", map[string]any{"peers": r.PeerCount()})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		r.handleFrame(p, data)
	}

	// unregister before counting so the log reflects the remaining peers
	r.unregister(p)
	r.log.Info(req.Context(), "ws_peer_disconnected", "Realtime peer disconnected", map[string]any{"peers": r.PeerCount()})
}

// handleFrame routes one inbound frame. A bad frame answers the sender with
// an error envelope and never reaches the other peers.
func (r *Relay) handleFrame(sender *peer, data []byte) {
	var env contracts.WSEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.sendError(sender, "Invalid message format")
		return
	}

	switch env.Type {
	case contracts.EventEmergency:
		r.broadcast(sender, contracts.WSEnvelope{Type: contracts.EventEmergencyAlert, Data: env.Data})
	case contracts.EventLocationUpdate:
		r.broadcast(sender, contracts.WSEnvelope{Type: contracts.EventLocationUpdated, Data: env.Data})
	default:
		r.sendError(sender, "Unknown message type")
	}
}

// broadcast delivers env to every peer except the sender. A peer whose write
// fails is dropped; the rest still receive the message.
func (r *Relay) broadcast(sender *peer, env contracts.WSEnvelope) {
	r.mu.Lock()
	targets := make([]*peer, 0, len(r.peers))
	for p := range r.peers {
		if p != sender {
			targets = append(targets, p)
		}
	}
	r.mu.Unlock()

	for _, p := range targets {
		if err := p.send(env); err != nil {
			r.log.Error(context.Background(), "ws_broadcast_write_failed", "Dropping unreachable realtime peer", err,
				map[string]any{"type": string(env.Type)})
			r.unregister(p)
			_ = p.conn.Close()
		}
	}
}

func (r *Relay) sendError(p *peer, msg string) {
	_ = p.send(contracts.WSEnvelope{Type: contracts.EventError, Message: msg})
}

func (r *Relay) register(p *peer) {
	r.mu.Lock()
	r.peers[p] = struct{}{}
	r.mu.Unlock()
}

func (r *Relay) unregister(p *peer) {
	r.mu.Lock()
	delete(r.peers, p)
	r.mu.Unlock()
}
