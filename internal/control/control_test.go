package control

import (
	"bufio"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rosettapad/rosettapad/session"
)

func TestRouterMatchWithPlaceholder(t *testing.T) {
	r := NewRouter()
	var gotID string
	r.Register("bus/{id}/list", func(req *Request, res *Response, logger *slog.Logger) error {
		gotID = req.Params["id"]
		return nil
	})
	h, params := r.Match("bus/7/list")
	require.NotNil(t, h)
	require.Equal(t, "7", params["id"])
	require.NoError(t, h(&Request{Params: params}, &Response{}, slog.Default()))
	require.Equal(t, "7", gotID)
}

func TestRouterMatchExactPath(t *testing.T) {
	r := NewRouter()
	called := false
	r.Register("ping", func(req *Request, res *Response, logger *slog.Logger) error {
		called = true
		return nil
	})
	h, params := r.Match("ping")
	require.NotNil(t, h)
	require.Empty(t, params)
	require.NoError(t, h(&Request{}, &Response{}, slog.Default()))
	require.True(t, called)
}

func TestRouterMatchUnknownPathReturnsNil(t *testing.T) {
	r := NewRouter()
	r.Register("ping", func(req *Request, res *Response, logger *slog.Logger) error { return nil })
	h, _ := r.Match("pong")
	require.Nil(t, h)
}

type fakeStatus struct {
	power     session.PowerState
	transport session.TransportSubstate
	driver    string
	rec       session.Record
	hasRec    bool
}

func (f *fakeStatus) Power() session.PowerState             { return f.power }
func (f *fakeStatus) Transport() session.TransportSubstate  { return f.transport }
func (f *fakeStatus) ActiveDriverName() string               { return f.driver }
func (f *fakeStatus) PairingRecord() (session.Record, bool) { return f.rec, f.hasRec }

func TestServerPingAndStatus(t *testing.T) {
	status := &fakeStatus{power: session.Active, transport: session.Disconnected, driver: "synthetic"}
	srv := New("127.0.0.1:0", status, nil, nil, nil)
	require.NoError(t, srv.Start())
	defer srv.Close()

	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping\n"))
	require.NoError(t, err)
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.JSONEq(t, `{"pong":true}`, line)

	_, err = conn.Write([]byte("status\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.JSONEq(t, `{"power":"active","transport":"disconnected","driver":"synthetic"}`, line)
}

func TestServerUnknownCommand(t *testing.T) {
	status := &fakeStatus{driver: "synthetic"}
	srv := New("127.0.0.1:0", status, nil, nil, nil)
	require.NoError(t, srv.Start())
	defer srv.Close()

	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("nope\n"))
	require.NoError(t, err)
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "unknown command")
}
