package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/rosettapad/rosettapad/driver"
	"github.com/rosettapad/rosettapad/session"
)

// StatusProvider is the narrow view of the running bridge the control
// server needs; implemented by the composition root (spec.md §9 "hands
// each a narrow handle to the shared snapshot slots").
type StatusProvider interface {
	Power() session.PowerState
	Transport() session.TransportSubstate
	ActiveDriverName() string
	PairingRecord() (session.Record, bool)
}

// Server listens on a loopback TCP address and answers one JSON command
// per line.
type Server struct {
	addr     string
	ln       net.Listener
	lnMu     sync.Mutex
	logger   *slog.Logger
	router   *Router
	status   StatusProvider
	pairing  *session.Store
	onRescan func()
}

// New builds a control server; addr should be loopback-only, e.g.
// "127.0.0.1:0" to pick an ephemeral port.
func New(addr string, status StatusProvider, pairing *session.Store, onRescan func(), logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:     addr,
		logger:   logger,
		router:   NewRouter(),
		status:   status,
		pairing:  pairing,
		onRescan: onRescan,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Register("ping", func(req *Request, res *Response, logger *slog.Logger) error {
		res.JSON = `{"pong":true}`
		return nil
	})

	s.router.Register("status", func(req *Request, res *Response, logger *slog.Logger) error {
		type statusResp struct {
			Power     string `json:"power"`
			Transport string `json:"transport"`
			Driver    string `json:"driver"`
		}
		resp := statusResp{Driver: "none"}
		if s.status != nil {
			resp.Power = s.status.Power().String()
			resp.Transport = s.status.Transport().String()
			if name := s.status.ActiveDriverName(); name != "" {
				resp.Driver = name
			}
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		res.JSON = string(b)
		return nil
	})

	s.router.Register("pairing/show", func(req *Request, res *Response, logger *slog.Logger) error {
		type pairingResp struct {
			Complete   bool   `json:"complete"`
			ConsoleMAC string `json:"console_mac,omitempty"`
			LocalMAC   string `json:"local_mac,omitempty"`
		}
		resp := pairingResp{}
		if s.status != nil {
			if rec, ok := s.status.PairingRecord(); ok {
				resp.Complete = true
				resp.ConsoleMAC = macString(rec.ConsoleMAC)
				resp.LocalMAC = macString(rec.LocalMAC)
			}
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		res.JSON = string(b)
		return nil
	})

	s.router.Register("pairing/clear", func(req *Request, res *Response, logger *slog.Logger) error {
		if s.pairing == nil {
			res.JSON = `{"cleared":false}`
			return nil
		}
		if err := s.pairing.Clear(); err != nil {
			return err
		}
		res.JSON = `{"cleared":true}`
		return nil
	})

	s.router.Register("driver/list", func(req *Request, res *Response, logger *slog.Logger) error {
		b, err := json.Marshal(driver.List())
		if err != nil {
			return err
		}
		res.JSON = string(b)
		return nil
	})

	s.router.Register("driver/rescan", func(req *Request, res *Response, logger *slog.Logger) error {
		if s.onRescan != nil {
			s.onRescan()
		}
		res.JSON = `{"rescanning":true}`
		return nil
	})
}

func macString(mac [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// Start listens and begins serving in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("control: listen: %w", err)
	}
	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()
	s.logger.Info("control server listening", "addr", ln.Addr().String())
	go s.serve()
	return nil
}

// Addr returns the bound address; only meaningful after Start.
func (s *Server) Addr() string {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("control server stopped")
				return
			}
			s.logger.Warn("control accept error", "error", err)
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	ctx := context.Background()
	r := bufio.NewReader(conn)
	logger := s.logger.With("remote", conn.RemoteAddr().String())

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("control read error", "error", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.dispatch(ctx, conn, line, logger)
	}
}

func (s *Server) dispatch(ctx context.Context, w io.Writer, line string, logger *slog.Logger) {
	path, args, _ := strings.Cut(line, " ")
	handler, params := s.router.Match(path)
	if handler == nil {
		fmt.Fprintf(w, `{"error":"unknown command %q"}`+"\n", path)
		return
	}
	req := &Request{Ctx: ctx, Params: params, Args: args}
	var res Response
	if err := handler(req, &res, logger); err != nil {
		fmt.Fprintf(w, `{"error":%q}`+"\n", err.Error())
		return
	}
	fmt.Fprintf(w, "%s\n", res.JSON)
}
