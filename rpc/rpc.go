package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/storyserver/logger"
	"github.com/wfunc/storyserver/room"
)

// Server manages the admin RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers the given services.
func NewServer(addr string, services ...any) (*Server, error) {
	server := rpc.NewServer()
	for _, svc := range services {
		if err := server.Register(svc); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      server,
	}, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// SnapshotSource is implemented by *room.Room.
type SnapshotSource interface {
	Snapshot() (room.Snapshot, error)
}

// SessionService exposes read-only session state over net/rpc.
type SessionService struct {
	source SnapshotSource
}

func NewSessionService(source SnapshotSource) *SessionService {
	return &SessionService{source: source}
}

type SnapshotArgs struct{}

type SnapshotReply struct {
	Snapshot room.Snapshot
}

// Snapshot follows the net/rpc signature: exported method, exported arguments,
// pointer reply, error return.
func (s *SessionService) Snapshot(args *SnapshotArgs, reply *SnapshotReply) error {
	snap, err := s.source.Snapshot()
	if err != nil {
		return err
	}
	reply.Snapshot = snap
	return nil
}
