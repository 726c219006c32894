package server

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/wfunc/storyserver/broadcast"
	"github.com/wfunc/storyserver/config"
	"github.com/wfunc/storyserver/logger"
	"github.com/wfunc/storyserver/market"
	"github.com/wfunc/storyserver/models"
	"github.com/wfunc/storyserver/monitor"
	"github.com/wfunc/storyserver/narrative"
	"github.com/wfunc/storyserver/network"
	"github.com/wfunc/storyserver/persistence"
	"github.com/wfunc/storyserver/room"
	storyrpc "github.com/wfunc/storyserver/rpc"
	"github.com/wfunc/storyserver/session"
)

const defaultName = "Anonymous"

type StoryServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	room           *room.Room
	journal        persistence.Journal
	monitor        *monitor.Monitor
	registry       *prometheus.Registry
	rpcServer      *storyrpc.Server
	healthServer   *storyrpc.HealthServer
	httpServer     *http.Server
	mux            *chi.Mux
	shutdownChan   chan struct{}
}

// NewStoryServer wires the session room to its transport. journal is wrapped
// in an AsyncWriter and closed on Shutdown.
func NewStoryServer(cfg *config.Config, narrator narrative.Generator, journal persistence.Journal, registry *prometheus.Registry) (*StoryServer, error) {
	mon, err := monitor.NewMonitor(cfg.Metrics.Namespace, registry)
	if err != nil {
		return nil, err
	}
	mon.PublishExpvar()

	s := &StoryServer{
		cfg:            cfg,
		sessionManager: session.NewManager(),
		journal:        persistence.NewAsyncWriter(journal, cfg.Journal.Buffer),
		monitor:        mon,
		registry:       registry,
		mux:            chi.NewRouter(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewSessionBroadcaster(s.sessionManager)

	s.room = room.NewRoom(room.Options{
		ID:           "main",
		OpeningStory: cfg.Session.OpeningStory,
		StartingCash: decimal.NewFromFloat(cfg.Session.StartingCash),
		Market: market.Params{
			Initial:     cfg.Market.InitialPrice,
			Mean:        cfg.Market.Mean,
			Reversion:   cfg.Market.Reversion,
			Momentum:    cfg.Market.Momentum,
			Volatility:  cfg.Market.Volatility,
			HistorySize: cfg.Market.HistorySize,
		},
		TickInterval:       cfg.Market.Interval,
		ExplicitRejections: cfg.Session.ExplicitRejections,
		Journal:            s.journal,
		Monitor:            mon,
	}, s.broadcaster, narrative.WithTimeout(narrator, cfg.Narrative.Timeout))

	s.routes()
	return s, nil
}

func (s *StoryServer) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": s.sessionManager.Count()})
		})
		r.Get("/api/session", s.handleSession)
		r.Handle("/metrics", monitor.Handler(s.registry))
		r.Handle("/debug/vars", expvar.Handler())
	})
}

// Handler exposes the router, mainly for tests.
func (s *StoryServer) Handler() http.Handler {
	return s.mux
}

// Room is the session coordinator behind this server.
func (s *StoryServer) Room() *room.Room {
	return s.room
}

// Start runs the optional admin listeners and blocks serving HTTP.
func (s *StoryServer) Start() error {
	if addr := s.cfg.Server.RPCAddress; addr != "" {
		rpcServer, err := storyrpc.NewServer(addr, storyrpc.NewSessionService(s.room))
		if err != nil {
			return err
		}
		s.rpcServer = rpcServer
		go s.rpcServer.Start()
	}
	if addr := s.cfg.Server.HealthAddress; addr != "" {
		healthServer, err := storyrpc.NewHealthServer(addr)
		if err != nil {
			return err
		}
		s.healthServer = healthServer
		go s.healthServer.Start()
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.HTTPAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Log.Infof("Story server listening on %s", s.cfg.Server.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes live sessions, the room and the journal.
func (s *StoryServer) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	// Hijacked websocket connections are not closed by http.Server.Shutdown.
	for _, sess := range s.sessionManager.All() {
		sess.Close()
	}
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
	if s.healthServer != nil {
		s.healthServer.Stop()
	}
	s.room.Close()
	if jerr := s.journal.Close(); jerr != nil && err == nil {
		err = jerr
	}
	return err
}

func (s *StoryServer) handleSession(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.room.Snapshot()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	view := sessionView{Snapshot: snap, Connections: []connectionView{}}
	for _, sess := range s.sessionManager.All() {
		view.Connections = append(view.Connections, connectionView{
			ID:         sess.GetID(),
			RemoteAddr: sess.Conn.RemoteAddr().String(),
			LastActive: sess.LastActive(),
		})
	}
	writeJSON(w, http.StatusOK, view)
}

// sessionView is the /api/session body: the room snapshot plus the live
// connections behind it.
type sessionView struct {
	room.Snapshot
	Connections []connectionView `json:"connections"`
}

type connectionView struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remoteAddr"`
	LastActive time.Time `json:"lastActive"`
}

func (s *StoryServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *StoryServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn, network.Options{
		WriteTimeout: s.cfg.Server.WriteTimeout,
		Heartbeat:    s.cfg.Server.Heartbeat,
		SendBuffer:   s.cfg.Server.SendBuffer,
	})
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncConnectedSessions()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecConnectedSessions()
		if err := s.room.Leave(sess.GetID()); err != nil && !errors.Is(err, room.ErrClosed) {
			logger.Log.Warnf("leave %s: %v", sess.GetID(), err)
		}
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			sess.Touch()
			if errors.Is(err, network.ErrMalformedFrame) {
				logger.Log.Debugf("session %s: %v", sess.GetID(), err)
				continue
			}
			if err != nil {
				return
			}
			s.monitor.IncMessagesReceived()
			start := time.Now()
			s.handlePacket(sess, packet)
			s.monitor.ObserveMessageLatency(time.Since(start))
		}
	}
}

func (s *StoryServer) handlePacket(sess *session.Session, packet *network.Packet) {
	var err error
	switch packet.Event {
	case network.EventPing:
		// ReadPacket already extended the deadline.
	case network.EventJoin:
		err = s.handleJoin(sess, packet)
	case network.EventStartGame:
		err = s.room.Start(sess.GetID())
	case network.EventAction:
		err = s.handleAction(sess, packet)
	case network.EventBuyStock, network.EventSellStock:
		err = s.handleTrade(sess, packet)
	default:
		logger.Log.Infof("Unknown event %q from %s", packet.Event, sess.GetID())
	}
	if err != nil {
		logger.Log.Debugf("%s from %s: %v", packet.Event, sess.GetID(), err)
	}
}

func (s *StoryServer) handleJoin(sess *session.Session, packet *network.Packet) error {
	var req network.JoinPayload
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			return err
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultName
	}
	return s.room.Join(sess.GetID(), name)
}

func (s *StoryServer) handleAction(sess *session.Session, packet *network.Packet) error {
	var req network.ActionPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return errors.New("empty action")
	}
	return s.room.SubmitAction(sess.GetID(), text)
}

func (s *StoryServer) handleTrade(sess *session.Session, packet *network.Packet) error {
	side := models.SideSell
	if packet.Event == network.EventBuyStock {
		side = models.SideBuy
	}
	var req network.TradePayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		if rerr := s.room.RejectTrade(sess.GetID(), side, "invalid quantity"); rerr != nil {
			return rerr
		}
		return err
	}
	if side == models.SideBuy {
		_, err := s.room.Buy(sess.GetID(), req.Qty)
		return err
	}
	_, err := s.room.Sell(sess.GetID(), req.Qty)
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
