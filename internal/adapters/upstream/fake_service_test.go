package upstream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeService is an in-process stand-in for the translation endpoint.
type fakeService struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	got   chan map[string]any

	mu     sync.Mutex
	auth   string
	query  url.Values
	status int
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{
		conns: make(chan *websocket.Conn, 4),
		got:   make(chan map[string]any, 64),
	}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		f.query = r.URL.Query()
		status := f.status
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if err := json.Unmarshal(data, &m); err == nil {
				f.got <- m
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/realtime"
}

func (f *fakeService) failWith(status int) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

func (f *fakeService) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-f.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no upstream connection")
		return nil
	}
}

func (f *fakeService) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m := <-f.got:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message from client")
		return nil
	}
}

type recorder struct {
	mu      sync.Mutex
	texts   []string
	audio   [][]byte
	overlay []overlayCall
}

type overlayCall struct {
	Text    string
	Ongoing bool
}

func (r *recorder) OnText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recorder) OnAudio(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, pcm)
}

func (r *recorder) ShowText(text string, ongoing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlay = append(r.overlay, overlayCall{text, ongoing})
	return nil
}
