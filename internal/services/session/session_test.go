package session_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerchat/internal/crypto"
	"peerchat/internal/domain"
	"peerchat/internal/metrics"
	"peerchat/internal/protocol/handshake"
	"peerchat/internal/protocol/wire"
	"peerchat/internal/services/identity"
	"peerchat/internal/services/session"
	"peerchat/internal/store"
)

const waitFor = 10 * time.Second

type peer struct {
	s   *session.Session
	q   *session.EventQueue
	dir string
	m   *metrics.Collector
}

func newPeer(t *testing.T, name, token string, tweak ...func(*session.Options)) *peer {
	t.Helper()
	opts := session.Options{LocalName: name, Token: token}
	for _, f := range tweak {
		f(&opts)
	}
	dir := filepath.Join(t.TempDir(), "downloads")
	q := session.NewEventQueue(512)
	m := metrics.New(prometheus.NewRegistry())

	s, err := session.New(opts, q, store.NewDownloadStore(dir), nil, m)
	require.NoError(t, err)
	t.Cleanup(func() {
		q.Close()
		_ = s.Close()
		select {
		case <-s.Done():
		case <-time.After(waitFor):
			t.Errorf("session %s did not shut down", name)
		}
	})
	return &peer{s: s, q: q, dir: dir, m: m}
}

func listen(t *testing.T, p *peer) string {
	t.Helper()
	addr, err := p.s.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	return addr.String()
}

// connectPair returns a listener and an initiator that completed the
// handshake.
func connectPair(t *testing.T, tweak ...func(*session.Options)) (lis, ini *peer) {
	t.Helper()
	lis = newPeer(t, "bob", "ABC123", tweak...)
	ini = newPeer(t, "alice", "ABC123", tweak...)

	require.NoError(t, ini.s.Connect(context.Background(), listen(t, lis)))
	assert.Equal(t, "alice", next(t, lis.q, session.EventConnected).Peer)
	assert.Equal(t, "bob", next(t, ini.q, session.EventConnected).Peer)
	assert.Equal(t, domain.StateConnected, lis.s.State())
	assert.Equal(t, domain.StateConnected, ini.s.State())
	return lis, ini
}

// next skips events until one of kind arrives.
func next(t *testing.T, q *session.EventQueue, kind session.EventKind) session.Event {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case ev := <-q.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

// drained returns whatever is queued right now.
func drained(q *session.EventQueue) []session.Event {
	var out []session.Event
	for {
		select {
		case ev := <-q.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func waitDone(t *testing.T, s *session.Session) error {
	t.Helper()
	select {
	case <-s.Done():
		return s.Wait()
	case <-time.After(waitFor):
		t.Fatal("session did not end")
		return nil
	}
}

// rawPeer speaks the wire protocol directly, for frames a Session would
// never produce.
type rawPeer struct {
	conn net.Conn
	rw   *bufio.ReadWriter
	key  *crypto.Key
}

func dialRaw(t *testing.T, addr, token string) *rawPeer {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	res, err := handshake.Dial(rw, []byte(token), "mallory")
	require.NoError(t, err)
	require.Equal(t, "bob", res.PeerName)

	key, err := crypto.DeriveKey([]byte(token))
	require.NoError(t, err)
	t.Cleanup(key.Destroy)
	return &rawPeer{conn: conn, rw: rw, key: key}
}

func (r *rawPeer) frame(t *testing.T, h wire.Header, payload io.Reader) {
	t.Helper()
	require.NoError(t, wire.WriteHeader(r.rw, h))
	_, err := io.CopyN(r.rw, payload, h.Length)
	require.NoError(t, err)
	require.NoError(t, r.rw.Flush())
}

func (r *rawPeer) text(t *testing.T, line string) {
	t.Helper()
	payload, err := crypto.Encrypt([]byte(line), r.key)
	require.NoError(t, err)
	r.frame(t, wire.Header{Type: wire.FrameText, Length: int64(len(payload))}, bytes.NewReader(payload))
}

func TestSession_TextRoundTrip(t *testing.T) {
	lis, ini := connectPair(t)

	require.NoError(t, ini.s.SendText("hello<script>"))

	echo := next(t, ini.q, session.EventText)
	assert.False(t, echo.FromPeer)
	assert.Equal(t, "helloscript", echo.Message.Text)
	assert.Equal(t, "alice", echo.Message.Sender)

	got := next(t, lis.q, session.EventText)
	assert.True(t, got.FromPeer)
	assert.Equal(t, "alice", got.Message.Sender)
	assert.Equal(t, "helloscript", got.Message.Text)

	require.NoError(t, lis.s.SendText("hi | there"))
	reply := next(t, ini.q, session.EventText)
	for !reply.FromPeer {
		reply = next(t, ini.q, session.EventText)
	}
	assert.Equal(t, "bob", reply.Message.Sender)
	assert.Equal(t, "hi | there", reply.Message.Text)

	assert.Equal(t, 1.0, testutil.ToFloat64(lis.m.FramesReceived.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ini.m.FramesSent.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lis.m.Handshakes.WithLabelValues("listener", "ok")))
	assert.Equal(t, "alice", lis.s.Peer())
}

func TestSession_WrongToken_Rejected(t *testing.T) {
	lis := newPeer(t, "bob", "ABC123")
	ini := newPeer(t, "alice", "XYZ")

	require.NoError(t, ini.s.Connect(context.Background(), listen(t, lis)))

	require.ErrorIs(t, waitDone(t, ini.s), handshake.ErrRejected)
	require.ErrorIs(t, waitDone(t, lis.s), handshake.ErrRejected)

	for _, p := range []*peer{lis, ini} {
		for _, ev := range drained(p.q) {
			assert.NotEqual(t, session.EventConnected, ev.Kind)
			assert.NotEqual(t, session.EventDisconnected, ev.Kind)
		}
		assert.Equal(t, domain.StateClosed, p.s.State())
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(lis.m.Handshakes.WithLabelValues("listener", "rejected")))
}

func TestSession_RawClient_ReceivesAck(t *testing.T) {
	lis := newPeer(t, "bob", "ABC123")
	conn, err := net.Dial("tcp", listen(t, lis))
	require.NoError(t, err)
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	require.NoError(t, wire.WriteString(rw, "ABC123"))
	require.NoError(t, rw.Flush())

	ack, err := wire.ReadString(rw)
	require.NoError(t, err)
	assert.Equal(t, "Connected", ack)
}

func TestSession_RawClient_WrongTokenNeverAcked(t *testing.T) {
	lis := newPeer(t, "bob", "ABC123")
	conn, err := net.Dial("tcp", listen(t, lis))
	require.NoError(t, err)
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	require.NoError(t, wire.WriteString(rw, "XYZ"))
	require.NoError(t, rw.Flush())

	resp, err := wire.ReadString(rw)
	require.NoError(t, err)
	assert.NotEqual(t, "Connected", resp)

	// The listener hangs up after rejecting.
	_, err = wire.ReadString(rw)
	assert.Error(t, err)
	require.ErrorIs(t, waitDone(t, lis.s), handshake.ErrRejected)
}

func TestSession_FileTransfer(t *testing.T) {
	lis, ini := connectPair(t)

	data := bytes.Repeat([]byte("0123456789abcdef!"), 5000)
	require.NoError(t, ini.s.SendFile(context.Background(), "../my report.txt", bytes.NewReader(data), int64(len(data))))

	sending := next(t, ini.q, session.EventFile)
	assert.Equal(t, domain.DirectionSending, sending.File.Direction)
	assert.Equal(t, ".._my_report.txt", sending.File.Name)

	got := next(t, lis.q, session.EventFile)
	assert.True(t, got.FromPeer)
	assert.Equal(t, domain.DirectionReceived, got.File.Direction)
	assert.Equal(t, filepath.Join(lis.dir, ".._my_report.txt"), got.File.Path)
	assert.EqualValues(t, len(data), got.File.Size)

	b, err := os.ReadFile(got.File.Path)
	require.NoError(t, err)
	assert.Equal(t, data, b)
}

func TestSession_SendFileAsync(t *testing.T) {
	lis, ini := connectPair(t)

	src := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(src, []byte("not really a jpeg"), 0o600))

	require.NoError(t, <-ini.s.SendFileAsync(context.Background(), src))
	got := next(t, lis.q, session.EventFile)
	assert.Equal(t, "photo.jpg", got.File.Name)

	err := <-ini.s.SendFileAsync(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	assert.Equal(t, domain.StateConnected, ini.s.State())
}

func TestSession_OversizedFile_StreamStaysInSync(t *testing.T) {
	lis := newPeer(t, "bob", "ABC123")
	raw := dialRaw(t, listen(t, lis), "ABC123")
	next(t, lis.q, session.EventConnected)

	const declared = 11 << 20
	raw.frame(t, wire.Header{Type: wire.FrameFile, Name: "big.bin", Length: declared}, bytes.NewReader(make([]byte, declared)))
	raw.text(t, "mallory|12:00:00|after")

	drop := next(t, lis.q, session.EventLog)
	for !strings.Contains(drop.Line, "Dropped") {
		drop = next(t, lis.q, session.EventLog)
	}
	assert.Contains(t, drop.Line, "too large")

	got := next(t, lis.q, session.EventText)
	assert.Equal(t, "after", got.Message.Text)
	assert.Equal(t, "mallory", got.Message.Sender)

	entries, _ := os.ReadDir(lis.dir)
	assert.Empty(t, entries)
	assert.Equal(t, 1.0, testutil.ToFloat64(lis.m.FramesRejected.WithLabelValues("file", metrics.ReasonTooLarge)))
	assert.Equal(t, domain.StateConnected, lis.s.State())
}

func TestSession_BadTextFrames_AreSkipped(t *testing.T) {
	lis := newPeer(t, "bob", "ABC123")
	raw := dialRaw(t, listen(t, lis), "ABC123")
	next(t, lis.q, session.EventConnected)

	raw.frame(t, wire.Header{Type: wire.FrameText, Length: 10}, bytes.NewReader(make([]byte, 10)))
	raw.frame(t, wire.Header{Type: wire.FrameText, Length: 17}, bytes.NewReader(make([]byte, 17)))
	raw.text(t, "no separators here")
	raw.text(t, "mallory|12:00:01|still here")

	got := next(t, lis.q, session.EventText)
	assert.Equal(t, "still here", got.Message.Text)

	assert.Equal(t, 2.0, testutil.ToFloat64(lis.m.FramesRejected.WithLabelValues("text", metrics.ReasonMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(lis.m.FramesRejected.WithLabelValues("text", metrics.ReasonDecrypt)))
}

func TestSession_UnknownFrame_Disconnects(t *testing.T) {
	lis := newPeer(t, "bob", "ABC123")
	raw := dialRaw(t, listen(t, lis), "ABC123")
	next(t, lis.q, session.EventConnected)

	require.NoError(t, binary.Write(raw.rw, binary.BigEndian, int32(7)))
	require.NoError(t, raw.rw.Flush())

	ev := next(t, lis.q, session.EventDisconnected)
	require.ErrorIs(t, ev.Err, wire.ErrUnknownFrame)
	require.ErrorIs(t, waitDone(t, lis.s), wire.ErrUnknownFrame)
}

func TestSession_PeerHangup(t *testing.T) {
	lis, ini := connectPair(t)

	require.NoError(t, ini.s.Close())

	local := next(t, ini.q, session.EventDisconnected)
	assert.NoError(t, local.Err)

	remote := next(t, lis.q, session.EventDisconnected)
	var terr *session.TransportError
	require.True(t, errors.As(remote.Err, &terr))
	assert.Equal(t, domain.StateClosed, lis.s.State())

	assert.ErrorIs(t, ini.s.SendText("late"), session.ErrClosed)
}

func TestSession_ConcurrentSends_DoNotInterleave(t *testing.T) {
	lis, ini := connectPair(t)

	data := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF}, 400000)
	const texts = 50

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, ini.s.SendFile(context.Background(), "blob.bin", bytes.NewReader(data), int64(len(data))))
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < texts; i++ {
			assert.NoError(t, ini.s.SendText("ping"))
		}
	}()
	wg.Wait()

	var gotTexts, gotFiles int
	var path string
	timeout := time.After(waitFor)
	for gotTexts < texts || gotFiles < 1 {
		select {
		case ev := <-lis.q.Events():
			switch ev.Kind {
			case session.EventText:
				assert.Equal(t, "ping", ev.Message.Text)
				gotTexts++
			case session.EventFile:
				path = ev.File.Path
				gotFiles++
			case session.EventDisconnected:
				t.Fatalf("disconnected: %v", ev.Err)
			}
		case <-timeout:
			t.Fatalf("got %d texts and %d files", gotTexts, gotFiles)
		}
	}

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, b)
}

func TestSession_SendFile_TooLarge(t *testing.T) {
	_, ini := connectPair(t, func(o *session.Options) { o.MaxFileSize = 1024 })

	err := ini.s.SendFile(context.Background(), "big", bytes.NewReader(make([]byte, 2000)), 2000)
	require.ErrorIs(t, err, session.ErrPayloadTooLarge)

	require.NoError(t, ini.s.SendText("still connected"))
}

func TestSession_SendBeforeConnect(t *testing.T) {
	p := newPeer(t, "alice", "ABC123")
	assert.ErrorIs(t, p.s.SendText("hi"), session.ErrNotConnected)
	assert.ErrorIs(t, p.s.SendFile(context.Background(), "x", bytes.NewReader(nil), 0), session.ErrNotConnected)
}

func TestSession_CloseUnblocksListen(t *testing.T) {
	p := newPeer(t, "bob", "ABC123")
	listen(t, p)
	assert.Equal(t, domain.StateListening, p.s.State())

	require.NoError(t, p.s.Close())
	require.NoError(t, p.s.Close())
	assert.NoError(t, waitDone(t, p.s))
	assert.Equal(t, domain.StateClosed, p.s.State())

	_, err := p.s.Listen(context.Background(), "127.0.0.1:0")
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestSession_ContextCancelCloses(t *testing.T) {
	p := newPeer(t, "bob", "ABC123")
	ctx, cancel := context.WithCancel(context.Background())
	_, err := p.s.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	cancel()
	assert.NoError(t, waitDone(t, p.s))
}

func TestSession_ListenerIsSingleUse(t *testing.T) {
	lis := newPeer(t, "bob", "ABC123")
	addr := listen(t, lis)
	dialRaw(t, addr, "ABC123")
	next(t, lis.q, session.EventConnected)

	_, err := lis.s.Listen(context.Background(), "127.0.0.1:0")
	assert.ErrorIs(t, err, session.ErrAlreadyStarted)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err == nil {
		conn.Close()
		t.Fatal("second connection accepted")
	}
}

func TestSession_HandshakeTimeout(t *testing.T) {
	lis := newPeer(t, "bob", "ABC123", func(o *session.Options) { o.HandshakeTimeout = 200 * time.Millisecond })
	conn, err := net.Dial("tcp", listen(t, lis))
	require.NoError(t, err)
	defer conn.Close()

	err = waitDone(t, lis.s)
	var terr *session.TransportError
	require.True(t, errors.As(err, &terr), "got %v", err)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestSession_XChaCha(t *testing.T) {
	lis, ini := connectPair(t, func(o *session.Options) { o.Suite = crypto.SuiteXChaCha })

	require.NoError(t, ini.s.SendText("sealed"))
	assert.Equal(t, "sealed", next(t, lis.q, session.EventText).Message.Text)

	data := []byte("authenticated file body")
	require.NoError(t, ini.s.SendFile(context.Background(), "a.txt", bytes.NewReader(data), int64(len(data))))
	got := next(t, lis.q, session.EventFile)
	b, err := os.ReadFile(got.File.Path)
	require.NoError(t, err)
	assert.Equal(t, data, b)
}

func TestNew_Validates(t *testing.T) {
	_, err := session.New(session.Options{LocalName: "alice"}, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = session.New(session.Options{LocalName: "a|b", Token: "ABC123"}, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = session.New(session.Options{LocalName: "alice", Token: "ABC123", Suite: "rot13"}, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestJoinDefaultPort(t *testing.T) {
	assert.Equal(t, "10.0.0.5:12345", session.JoinDefaultPort("10.0.0.5", session.DefaultPort))
	assert.Equal(t, "10.0.0.5:9000", session.JoinDefaultPort("10.0.0.5:9000", session.DefaultPort))
	assert.Equal(t, "[::1]:12345", session.JoinDefaultPort("::1", session.DefaultPort))
	assert.Equal(t, "[::1]:12345", session.JoinDefaultPort("[::1]", session.DefaultPort))
	assert.Equal(t, ":12345", session.JoinDefaultPort("", session.DefaultPort))
}

func TestSession_CloseWhileFileSourceBlocks(t *testing.T) {
	_, ini := connectPair(t)

	pr, pw := io.Pipe()
	defer pw.Close()
	sent := make(chan error, 1)
	go func() { sent <- ini.s.SendFile(context.Background(), "stuck.bin", pr, 100) }()

	// The write returns once the sender has consumed it, so the sender is
	// inside its frame and holds the writer slot.
	_, err := pw.Write(make([]byte, 10))
	require.NoError(t, err)

	require.NoError(t, ini.s.Close())
	require.NoError(t, waitDone(t, ini.s))
	assert.NoError(t, next(t, ini.q, session.EventDisconnected).Err)

	pw.CloseWithError(io.ErrClosedPipe)
	select {
	case err := <-sent:
		assert.Error(t, err)
	case <-time.After(waitFor):
		t.Fatal("SendFile did not return after its source failed")
	}
}

func TestSession_ConnectReturnsBeforeDial(t *testing.T) {
	dialing := make(chan struct{})
	p := newPeer(t, "alice", "ABC123", func(o *session.Options) {
		o.Dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
			close(dialing)
			<-ctx.Done()
			return nil, ctx.Err()
		}
	})

	require.NoError(t, p.s.Connect(context.Background(), "198.51.100.7"))
	assert.Equal(t, domain.StateConnecting, p.s.State())

	select {
	case <-dialing:
	case <-time.After(waitFor):
		t.Fatal("dial never started")
	}
	require.NoError(t, p.s.Close())
	require.NoError(t, waitDone(t, p.s))
}

func TestSession_DialFailureEndsSession(t *testing.T) {
	var target string
	p := newPeer(t, "alice", "ABC123", func(o *session.Options) {
		o.Dial = func(_ context.Context, _, addr string) (net.Conn, error) {
			target = addr
			return nil, errors.New("no route to host")
		}
	})

	require.NoError(t, p.s.Connect(context.Background(), "198.51.100.7"))

	var terr *session.TransportError
	require.ErrorAs(t, waitDone(t, p.s), &terr)
	assert.Equal(t, "dial", terr.Op)
	assert.Equal(t, "198.51.100.7:12345", target)

	line := next(t, p.q, session.EventLog).Line
	for !strings.Contains(line, "Connection failed") {
		line = next(t, p.q, session.EventLog).Line
	}
	assert.Contains(t, line, "no route to host")
	assert.Equal(t, domain.StateClosed, p.s.State())
}

func TestSession_PeerNameWithControlChars_Refused(t *testing.T) {
	lis := newPeer(t, "bob", "ABC123")
	conn, err := net.Dial("tcp", listen(t, lis))
	require.NoError(t, err)
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	_, err = handshake.Dial(rw, []byte("ABC123"), "mal\x1b[2Jlory")
	require.NoError(t, err)

	require.ErrorIs(t, waitDone(t, lis.s), identity.ErrInvalidDisplayName)
	for _, ev := range drained(lis.q) {
		assert.NotEqual(t, session.EventConnected, ev.Kind)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(lis.m.Handshakes.WithLabelValues("listener", "error")))
}

func TestSession_SenderWithControlChars_Skipped(t *testing.T) {
	lis := newPeer(t, "bob", "ABC123")
	raw := dialRaw(t, listen(t, lis), "ABC123")
	next(t, lis.q, session.EventConnected)

	raw.text(t, "mal\alory|12:00:00|ring")
	raw.text(t, "mallory|12:00:01|quiet")

	got := next(t, lis.q, session.EventText)
	assert.Equal(t, "mallory", got.Message.Sender)
	assert.Equal(t, "quiet", got.Message.Text)
	assert.Equal(t, 1.0, testutil.ToFloat64(lis.m.FramesRejected.WithLabelValues("text", metrics.ReasonMalformed)))
	assert.Equal(t, domain.StateConnected, lis.s.State())
}
