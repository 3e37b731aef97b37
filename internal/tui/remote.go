package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alesut/pixel-agents/internal/session"
	"github.com/alesut/pixel-agents/internal/ws"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 90 * time.Second // the server pings every 54s
	httpTimeout  = 10 * time.Second
)

// RemoteFeed reads a pixel-agents server's /ws stream and calls its REST
// endpoints for rescans and health.
type RemoteFeed struct {
	wsURL    string
	httpBase string
	token    string
	client   *http.Client

	mu      sync.Mutex
	writeMu sync.Mutex // serialises conn writes
	conn    *websocket.Conn
	seq     uint64
	closed  bool
}

func NewRemoteFeed(wsURL, token string) *RemoteFeed {
	return &RemoteFeed{
		wsURL:    wsURL,
		httpBase: deriveHTTPBase(wsURL),
		token:    token,
		client:   &http.Client{Timeout: httpTimeout},
	}
}

// deriveHTTPBase converts ws://host:port/ws to http://host:port.
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:8787"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") || u.Scheme == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}

func (f *RemoteFeed) connect(ctx context.Context) (*websocket.Conn, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFeedClosed
	}
	if f.conn != nil {
		conn := f.conn
		f.mu.Unlock()
		return conn, nil
	}
	f.mu.Unlock()

	header := http.Header{}
	if f.token != "" {
		header.Set("X-Pixel-Agents-Token", f.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.wsURL, err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		conn.Close()
		return nil, ErrFeedClosed
	}
	f.conn = conn
	f.seq = 0
	return conn, nil
}

func (f *RemoteFeed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	if f.conn == conn {
		f.conn = nil
	}
	f.mu.Unlock()
	conn.Close()
}

// Next reads the next event, dialing first if there is no connection. A
// read error drops the connection; the following call reconnects and the
// server opens the new stream with a snapshot. Cancelling ctx drops the
// connection too, which unblocks the read.
func (f *RemoteFeed) Next(ctx context.Context) (session.Event, error) {
	conn, err := f.connect(ctx)
	if err != nil {
		return session.Event{}, err
	}
	stop := context.AfterFunc(ctx, func() { f.drop(conn) })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			f.drop(conn)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return session.Event{}, ctxErr
			}
			return session.Event{}, err
		}

		ev, seq, err := ws.DecodeEvent(data)
		if err != nil {
			// Error frames precede a close; anything else unknown is skipped.
			if errors.Is(err, ws.ErrServer) {
				f.drop(conn)
				return session.Event{}, err
			}
			continue
		}

		f.mu.Lock()
		f.seq = seq
		f.mu.Unlock()
		return ev, nil
	}
}

// Seq returns the sequence number of the last event read.
func (f *RemoteFeed) Seq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

// Resync asks the server for a fresh snapshot on the current connection.
func (f *RemoteFeed) Resync(ctx context.Context) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(ws.ClientMessage{Type: ws.ClientResync})
}

func (f *RemoteFeed) Rescan(ctx context.Context) error {
	return f.do(ctx, http.MethodPost, "/api/rescan", nil)
}

func (f *RemoteFeed) Health(ctx context.Context) (ws.HealthPayload, error) {
	var h ws.HealthPayload
	err := f.do(ctx, http.MethodGet, "/api/health", &h)
	return h, err
}

func (f *RemoteFeed) Close() {
	f.mu.Lock()
	f.closed = true
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (f *RemoteFeed) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, f.httpBase+path, nil)
	if err != nil {
		return err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
