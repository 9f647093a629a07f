package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newEchoServer echoes every text frame and records the handshake headers.
func newEchoServer(t *testing.T, headers chan<- http.Header) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		headers <- c.Request.Header.Clone()
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestDialer_SendsCredentialAndEchoes(t *testing.T) {
	req := require.New(t)
	headers := make(chan http.Header, 1)
	endpoint := newEchoServer(t, headers)

	d := NewDialer(Options{Instance: "inst-1"})
	s, err := d.Dial(context.Background(), endpoint, "secret")
	req.NoError(err)
	defer s.Close()

	h := <-headers
	req.Equal("Bearer secret", h.Get("Authorization"))
	req.Equal("inst-1", h.Get(InstanceHeader))

	req.NoError(s.WriteFrame([]byte(`{"type":"ping","data":{}}`)))
	frame, err := s.ReadFrame()
	req.NoError(err)
	req.JSONEq(`{"type":"ping","data":{}}`, string(frame))
}

func TestDialer_RejectedHandshake(t *testing.T) {
	endpoint := newEchoServer(t, make(chan http.Header, 1))

	_, err := NewDialer(Options{}).Dial(context.Background(), endpoint, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestDialer_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDialer(Options{HandshakeTimeout: time.Second}).Dial(ctx, "ws://127.0.0.1:1/ws", "t")
	require.Error(t, err)
}

func TestStream_CloseUnblocksRead(t *testing.T) {
	req := require.New(t)
	endpoint := newEchoServer(t, make(chan http.Header, 1))

	s, err := NewDialer(Options{}).Dial(context.Background(), endpoint, "t")
	req.NoError(err)

	done := make(chan error, 1)
	go func() {
		_, err := s.ReadFrame()
		done <- err
	}()
	req.NoError(s.Close())
	req.NoError(s.Close())

	select {
	case err := <-done:
		req.Error(err)
	case <-time.After(2 * time.Second):
		t.Fatal("read not unblocked by close")
	}
}
