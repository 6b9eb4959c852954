package hub

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/protocol"
	"github.com/vigilnet/vigil/internal/sig"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 64 << 10
)

// Server owns the peer websocket endpoint. Each accepted connection gets its
// own read goroutine; replies from different peers are handled concurrently.
type Server struct {
	log      *zap.Logger
	registry *Registry
	replies  *ReplyHandler
	verifier *sig.Verifier
	upgrader websocket.Upgrader

	mUnknownType prometheus.Counter
	mBadSignup   prometheus.Counter
}

func NewServer(log *zap.Logger, registry *Registry, replies *ReplyHandler, verifier *sig.Verifier) *Server {
	return &Server{
		log:      log.With(zap.String("component", "hub.server")),
		registry: registry,
		replies:  replies,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 << 10,
			WriteBufferSize: 4 << 10,
			// Validators are standalone processes, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		mUnknownType: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_messages_unknown_type_total", Help: "Peer messages with an unknown envelope type",
		}),
		mBadSignup: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_signups_rejected_total", Help: "Signup attempts with bad signatures",
		}),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return otelhttp.NewHandler(mux, "hub")
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade", zap.Error(err))
		return
	}
	ws.SetReadLimit(maxMessageSize)

	conn := newWSConn(ws)
	remote := remoteIP(r)
	log := s.log.With(zap.String("remote", remote))
	log.Debug("peer channel open")

	defer func() {
		s.registry.Remove(conn)
		_ = conn.Close()
		log.Debug("peer channel closed")
	}()

	ctx := r.Context()
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws read", zap.Error(err))
			}
			return
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			log.Warn("undecodable peer message", zap.Error(err))
			continue
		}

		switch {
		case msg.Signup != nil:
			s.handleSignup(ctx, conn, remote, msg.Signup)
		case msg.ValidateReply != nil:
			s.replies.HandleValidateReply(ctx, msg.ValidateReply)
		default:
			// Unknown types are not fatal to the channel.
			s.mUnknownType.Inc()
			log.Warn("unknown message type", zap.String("type", msg.Type))
		}
	}
}

func (s *Server) handleSignup(ctx context.Context, conn Conn, remote string, req *protocol.SignupRequest) {
	if !s.verifier.Verify(sig.SignupChallenge(req.CallbackID, req.PublicKey), req.PublicKey, req.SignedMessage) {
		s.mBadSignup.Inc()
		s.log.Warn("signup failed signature verification",
			zap.String("public_key", req.PublicKey),
			zap.String("remote", remote),
		)
		return
	}

	ip := req.IP
	if ip == "" {
		ip = remote
	}
	peer, err := s.registry.RegisterOrGet(ctx, req.PublicKey, ip, conn)
	if err != nil {
		s.log.Error("register peer", zap.String("public_key", req.PublicKey), zap.Error(err))
		return
	}

	if err := conn.Send(protocol.TypeSignup, protocol.SignupReply{
		ValidatorID: peer.ValidatorID,
		CallbackID:  req.CallbackID,
	}); err != nil {
		s.log.Warn("send signup reply", zap.Int64("validator_id", peer.ValidatorID), zap.Error(err))
	}
}

// wsConn serializes writes: gorilla permits one concurrent writer only, and
// both the dispatcher and the signup path send on the same channel.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newWSConn(ws *websocket.Conn) *wsConn { return &wsConn{ws: ws} }

func (c *wsConn) Send(msgType string, payload any) error {
	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) Close() error { return c.ws.Close() }

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
