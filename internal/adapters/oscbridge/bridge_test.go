package oscbridge

import (
	"context"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Translate/internal/app/chatbox"
	"github.com/hypebeast/go-osc/osc"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []*osc.Message
}

func (f *fakeSender) Send(p osc.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, p.(*osc.Message))
	return nil
}

type muteRecorder struct {
	ch chan bool
}

func newMuteRecorder() *muteRecorder { return &muteRecorder{ch: make(chan bool, 8)} }

func (m *muteRecorder) OnMute(muted bool) { m.ch <- muted }

func newTestBridge() (*Bridge, *fakeSender) {
	b := New(Config{SendHost: "127.0.0.1", SendPort: 9000, ListenHost: "127.0.0.1"})
	fs := &fakeSender{}
	b.newSender = func() Sender { return fs }
	return b, fs
}

func TestShowText_SendsTypingThenInput(t *testing.T) {
	b, fs := newTestBridge()

	if err := b.ShowText("Hello. World", false); err != nil {
		t.Fatalf("ShowText: %v", err)
	}
	if len(fs.msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(fs.msgs))
	}
	if fs.msgs[0].Address != AddrTyping || !reflect.DeepEqual(fs.msgs[0].Arguments, []any{false}) {
		t.Fatalf("typing message = %+v", fs.msgs[0])
	}
	if fs.msgs[1].Address != AddrInput || !reflect.DeepEqual(fs.msgs[1].Arguments, []any{"Hello. World", true, true}) {
		t.Fatalf("input message = %+v", fs.msgs[1])
	}
}

func TestShowText_OngoingAndLineBreaks(t *testing.T) {
	b, fs := newTestBridge()
	b.SetLineBreaks(true)

	if err := b.ShowText("Done. Next ... [partial]", true); err != nil {
		t.Fatalf("ShowText: %v", err)
	}
	if !reflect.DeepEqual(fs.msgs[0].Arguments, []any{true}) {
		t.Fatalf("typing should be on for ongoing text: %+v", fs.msgs[0])
	}
	want := []any{"Done.\nNext...\n[partial]", true, false}
	if !reflect.DeepEqual(fs.msgs[1].Arguments, want) {
		t.Fatalf("input = %#v, want %#v", fs.msgs[1].Arguments, want)
	}
}

func TestShowText_Truncates(t *testing.T) {
	b, fs := newTestBridge()
	long := ""
	for i := 0; i < 40; i++ {
		long += "Word word. "
	}
	if err := b.ShowText(long+"Tail!", false); err != nil {
		t.Fatalf("ShowText: %v", err)
	}
	payload := fs.msgs[1].Arguments[0].(string)
	if n := len([]rune(payload)); n > chatbox.MaxLength {
		t.Fatalf("payload has %d runes", n)
	}
}

func TestMuteListener_SetAndRevoke(t *testing.T) {
	b, _ := newTestBridge()
	first := newMuteRecorder()
	revokeFirst := b.SetMuteListener(first)

	b.handleMute(osc.NewMessage(AddrMuteSelf, true))
	if got := <-first.ch; !got {
		t.Fatal("listener should see mute=true")
	}

	second := newMuteRecorder()
	revokeSecond := b.SetMuteListener(second)
	revokeFirst() // stale revoke must not clear the new slot

	b.handleMute(osc.NewMessage(AddrMuteSelf, int32(0)))
	select {
	case got := <-second.ch:
		if got {
			t.Fatal("int32(0) should read as unmuted")
		}
	default:
		t.Fatal("second listener not called")
	}
	if len(first.ch) != 0 {
		t.Fatal("replaced listener must not be called")
	}

	revokeSecond()
	b.handleMute(osc.NewMessage(AddrMuteSelf, true))
	if len(second.ch) != 0 {
		t.Fatal("revoked listener must not be called")
	}
}

func TestHandleMute_IgnoresBadArguments(t *testing.T) {
	b, _ := newTestBridge()
	rec := newMuteRecorder()
	b.SetMuteListener(rec)

	b.handleMute(osc.NewMessage(AddrMuteSelf))
	b.handleMute(osc.NewMessage(AddrMuteSelf, "yes"))
	if len(rec.ch) != 0 {
		t.Fatal("malformed mute messages must be ignored")
	}
}

func TestStart_ReceivesMuteOverUDP(t *testing.T) {
	b, _ := newTestBridge()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	rec := newMuteRecorder()
	b.SetMuteListener(rec)

	udp := b.LocalAddr().(*net.UDPAddr)
	client := osc.NewClient("127.0.0.1", udp.Port)
	if err := client.Send(osc.NewMessage(AddrMuteSelf, true)); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-rec.ch:
		if !got {
			t.Fatal("expected mute=true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("mute never dispatched")
	}
}

func TestStart_SurvivesMalformedDatagram(t *testing.T) {
	b, _ := newTestBridge()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec := newMuteRecorder()
	b.SetMuteListener(rec)

	raw, err := net.DialUDP("udp", nil, b.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer raw.Close()
	for _, junk := range []string{"/x", "#bundle", "garbage"} {
		if _, err := raw.Write([]byte(junk)); err != nil {
			t.Fatalf("write %q: %v", junk, err)
		}
	}

	client := osc.NewClient("127.0.0.1", b.LocalAddr().(*net.UDPAddr).Port)
	if err := client.Send(osc.NewMessage(AddrMuteSelf, true)); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-rec.ch:
		if !got {
			t.Fatal("expected mute=true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener stopped after a malformed datagram")
	}
}

func TestStart_DispatchesInArrivalOrder(t *testing.T) {
	b, _ := newTestBridge()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec := newMuteRecorder()
	b.SetMuteListener(rec)

	client := osc.NewClient("127.0.0.1", b.LocalAddr().(*net.UDPAddr).Port)
	want := []bool{true, false, true, false}
	for _, v := range want {
		if err := client.Send(osc.NewMessage(AddrMuteSelf, v)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	for i, w := range want {
		select {
		case got := <-rec.ch:
			if got != w {
				t.Fatalf("toggle %d = %v, want %v", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("toggle %d never dispatched", i)
		}
	}
}
