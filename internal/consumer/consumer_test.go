package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/danmuck/accord/internal/testutil/testlog"
)

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startViewer(t *testing.T) (*Service, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg := DefaultServiceConfig()
	cfg.ListenAddr = ln.Addr().String()
	svc, err := NewServiceWithConfig(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve exit err: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Errorf("viewer did not stop")
		}
	})
	return svc, ln.Addr().String()
}

func TestLatestLoadBeforeFirstStore(t *testing.T) {
	testlog.Start(t)
	l := NewLatest()
	if _, seq, ok := l.Load(); ok || seq != 0 {
		t.Fatalf("expected empty sink, got seq=%d ok=%v", seq, ok)
	}
}

func TestLatestKeepsOnlyNewest(t *testing.T) {
	testlog.Start(t)
	l := NewLatest()
	for i := 1; i <= 3; i++ {
		l.Store(frame.Frame{TimestampMS: uint64(i)})
	}
	f, seq, ok := l.Load()
	if !ok || seq != 3 || f.TimestampMS != 3 {
		t.Fatalf("unexpected latest: f=%+v seq=%d ok=%v", f, seq, ok)
	}
}

func TestLatestWaitWakesOnStore(t *testing.T) {
	testlog.Start(t)
	l := NewLatest()
	l.Store(frame.Frame{TimestampMS: 1})

	got := make(chan uint64, 1)
	go func() {
		f, _, err := l.Wait(context.Background(), 1)
		if err != nil {
			got <- 0
			return
		}
		got <- f.TimestampMS
	}()
	time.Sleep(20 * time.Millisecond)
	l.Store(frame.Frame{TimestampMS: 2})

	select {
	case ts := <-got:
		if ts != 2 {
			t.Fatalf("wait returned ts=%d", ts)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("wait never woke")
	}
}

func TestLatestWaitReturnsImmediatelyWhenBehind(t *testing.T) {
	testlog.Start(t)
	l := NewLatest()
	l.Store(frame.Frame{TimestampMS: 9})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	f, seq, err := l.Wait(ctx, 0)
	if err != nil || seq != 1 || f.TimestampMS != 9 {
		t.Fatalf("unexpected wait result: f=%+v seq=%d err=%v", f, seq, err)
	}
}

func TestLatestWaitHonorsContext(t *testing.T) {
	testlog.Start(t)
	l := NewLatest()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := l.Wait(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLatestConcurrentStoreAndLoad(t *testing.T) {
	testlog.Start(t)
	l := NewLatest()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l.Store(frame.Frame{TimestampMS: uint64(i)})
				_, _, _ = l.Load()
			}
		}()
	}
	wg.Wait()
	if _, seq, _ := l.Load(); seq != 800 {
		t.Fatalf("sequence got=%d want=800", seq)
	}
}

func TestNewServiceRequiresListenAddr(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	cfg.ListenAddr = ""
	if _, err := NewServiceWithConfig(cfg); !errors.Is(err, ErrListenAddressRequired) {
		t.Fatalf("expected ErrListenAddressRequired, got %v", err)
	}
}

func TestServiceStoresFramesFromRelay(t *testing.T) {
	testlog.Start(t)
	svc, addr := startViewer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial viewer: %v", err)
	}
	defer conn.Close()

	for i := 1; i <= 5; i++ {
		if err := frame.WriteFrame(conn, frame.LayoutV1, frame.Frame{TimestampMS: uint64(i), X: float32(i)}); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	waitFor(t, 2*time.Second, "five frames", func() bool {
		return svc.Snapshot().Frames == 5
	})
	f, seq, ok := svc.Latest().Load()
	if !ok || seq != 5 || f.TimestampMS != 5 || f.X != 5 {
		t.Fatalf("unexpected latest: f=%+v seq=%d ok=%v", f, seq, ok)
	}
}

func TestServiceAcceptsNextConnectionAfterBadFrame(t *testing.T) {
	testlog.Start(t)
	svc, addr := startViewer(t)

	bad, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial viewer: %v", err)
	}
	garbage := make([]byte, frame.LayoutV1.Size())
	if _, err := bad.Write(garbage); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	waitFor(t, 2*time.Second, "bad connection dropped", func() bool {
		st := svc.Snapshot()
		return st.Connections == 1 && !st.Connected
	})
	_ = bad.Close()

	good, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial viewer: %v", err)
	}
	defer good.Close()
	if err := frame.WriteFrame(good, frame.LayoutV1, frame.Frame{TimestampMS: 42}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	waitFor(t, 2*time.Second, "frame after reconnect", func() bool {
		f, _, ok := svc.Latest().Load()
		return ok && f.TimestampMS == 42
	})
	if st := svc.Snapshot(); st.Frames != 1 || st.Connections != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestRouterLatest(t *testing.T) {
	testlog.Start(t)
	svc, err := NewService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	router := svc.HTTPRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/latest", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 before first frame, got %d", rr.Code)
	}

	svc.Latest().Store(frame.Frame{TimestampMS: 7, Yaw: 1.5})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/latest", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("latest status=%d", rr.Code)
	}
	var body latestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if body.Sequence != 1 || body.Frame.TimestampMS != 7 || body.Frame.Yaw != 1.5 {
		t.Fatalf("unexpected latest body: %+v", body)
	}
}

func TestRouterLatestLongPoll(t *testing.T) {
	testlog.Start(t)
	svc, err := NewService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	router := svc.HTTPRouter()
	svc.Latest().Store(frame.Frame{TimestampMS: 1})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/latest?after=1&wait=30ms", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 when nothing newer arrives, got %d", rr.Code)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		svc.Latest().Store(frame.Frame{TimestampMS: 2})
	}()
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/latest?after=1&wait=2s", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("long poll status=%d", rr.Code)
	}
	var body latestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if body.Sequence != 2 || body.Frame.TimestampMS != 2 {
		t.Fatalf("unexpected long poll body: %+v", body)
	}

	for _, q := range []string{"/latest?wait=soon", "/latest?wait=1s&after=x"} {
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, q, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s status=%d", q, rr.Code)
		}
	}
}

func TestRouterCorsAndHealth(t *testing.T) {
	testlog.Start(t)
	svc, err := NewService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	router := svc.HTTPRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status=%d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected disallowed origin to be rejected, got %d", rr.Code)
	}
}
