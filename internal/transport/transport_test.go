package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentgateway/gateway/internal/protocol"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func TestServerEchoesHello(t *testing.T) {
	var mu sync.Mutex
	var received []string

	srv := NewServer(func(c *Conn) {
		c.AttachFrameHandler(func(ctx context.Context, frameType string, raw []byte) {
			mu.Lock()
			received = append(received, frameType)
			mu.Unlock()
			_ = c.Emit(protocol.InfoFrame{Type: protocol.TypeInfo, Message: "ack"})
		})
	}, nil, nil)
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	client := dial(t, httpSrv.URL)
	defer client.Close()

	hello := map[string]string{"type": protocol.TypeHello}
	if err := client.WriteJSON(hello); err != nil {
		t.Fatalf("write: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var info protocol.InfoFrame
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.Message != "ack" {
		t.Fatalf("unexpected frame: %+v", info)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != protocol.TypeHello {
		t.Fatalf("unexpected frames received: %v", received)
	}
}

func TestServerSupersedesPriorConnection(t *testing.T) {
	srv := NewServer(func(c *Conn) {}, nil, nil)
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	first := dial(t, httpSrv.URL)
	defer first.Close()

	second := dial(t, httpSrv.URL)
	defer second.Close()

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := first.ReadMessage()
	if err != nil {
		t.Fatalf("expected an info frame or close before the connection dies: %v", err)
	}
	var info protocol.InfoFrame
	if json.Unmarshal(data, &info) == nil && info.Type == protocol.TypeInfo {
		return
	}
	t.Fatalf("expected info frame, got %q", data)
}

func TestServerRejectsMissingBearerToken(t *testing.T) {
	verify := func(token string) error {
		if token == "good" {
			return nil
		}
		return errBadToken
	}
	srv := NewServer(func(c *Conn) {}, verify, nil)
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("expected dial without a token to fail")
	} else if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401, got response %+v (err %v)", resp, err)
	}

	header := map[string][]string{"Authorization": {"Bearer good"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("expected dial with a valid token to succeed: %v", err)
	}
	conn.Close()
}

var errBadToken = errors.New("bad token")
