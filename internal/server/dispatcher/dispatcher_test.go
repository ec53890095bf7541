package dispatcher

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sys/unix"

	"github.com/yndnr/forkhttpd/internal/server/config"
	"github.com/yndnr/forkhttpd/internal/server/httpserver"
	"github.com/yndnr/forkhttpd/internal/server/worker"
	"github.com/yndnr/forkhttpd/internal/telemetry/metric"
)

type countingPoster struct {
	posts atomic.Int32
	err   error
}

func (p *countingPoster) Post() error {
	if p.err != nil {
		return p.err
	}
	p.posts.Add(1)
	return nil
}

// answerOK reads one line and answers "ok".
var answerOK = worker.HandlerFunc(func(c net.Conn) error {
	if _, err := bufio.NewReader(c).ReadString('\n'); err != nil {
		return err
	}
	_, err := io.WriteString(c, "ok\n")
	return err
})

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DocumentRoot = t.TempDir()
	cfg.Host = "127.0.0.1"
	cfg.Port = "0"
	cfg.Jail = false
	cfg.Workers = 4
	cfg.StopTimeout = 2 * time.Second
	return cfg
}

type running struct {
	srv     *Server
	signals chan os.Signal
	done    chan result
}

type result struct {
	outcome Outcome
	err     error
}

func start(t *testing.T, opts Options) *running {
	t.Helper()

	sigs := make(chan os.Signal, 1)
	opts.Signals = sigs
	srv, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r := &running{srv: srv, signals: sigs, done: make(chan result, 1)}
	go func() {
		outcome, err := srv.Run(context.Background())
		r.done <- result{outcome, err}
	}()

	select {
	case <-srv.Ready():
	case res := <-r.done:
		t.Fatalf("Run() returned before ready: %v %v", res.outcome, res.err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	t.Cleanup(func() {
		select {
		case sigs <- syscall.SIGTERM:
		default:
		}
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
		}
	})
	return r
}

func (r *running) wait(t *testing.T) result {
	t.Helper()
	select {
	case res := <-r.done:
		// Let cleanup see a finished server.
		r.done <- res
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
		return result{}
	}
}

func ask(t *testing.T, addr net.Addr) string {
	t.Helper()
	c, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(3 * time.Second))

	if _, err := io.WriteString(c, "ping\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return strings.TrimSpace(line)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRoundRobin(t *testing.T) {
	rr := newRoundRobin(4)
	want := []int{0, 1, 2, 3, 0, 1, 2, 3, 0, 1}
	for i, w := range want {
		if got := rr.Next(); got != w {
			t.Errorf("connection %d went to slot %d, want %d", i, got, w)
		}
	}
}

func TestRoundRobin_SingleSlot(t *testing.T) {
	rr := newRoundRobin(1)
	for i := 0; i < 5; i++ {
		if got := rr.Next(); got != 0 {
			t.Fatalf("Next() = %d, want 0", got)
		}
	}
}

func TestListen(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1", "0", 8)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	raw, err := ln.(syscall.Conn).SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn() error = %v", err)
	}
	var reuse int
	raw.Control(func(fd uintptr) {
		reuse, _ = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR)
	})
	if reuse == 0 {
		t.Error("listener should have SO_REUSEADDR set")
	}

	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c.Close()
}

func TestListen_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := Listen(ctx, "127.0.0.1", "no-such-service-xyz", 8); err == nil {
		t.Error("unknown service name should fail")
	}

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()
	_, port, _ := net.SplitHostPort(busy.Addr().String())
	if _, err := Listen(ctx, "127.0.0.1", port, 8); err == nil {
		t.Error("binding a port with an active listener should fail")
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() without config should fail")
	}
}

func TestServer_RoundRobinOrder(t *testing.T) {
	reg := metric.NewRegistry()
	r := start(t, Options{Config: testConfig(t), Handler: answerOK, Metrics: reg})

	for i := 0; i < 10; i++ {
		if got := ask(t, r.srv.Addr()); got != "ok" {
			t.Fatalf("connection %d answer = %q, want ok", i, got)
		}
		slot := strconv.Itoa(i % 4)
		want := float64(i/4 + 1)
		waitFor(t, "handoff to slot "+slot, func() bool {
			return testutil.ToFloat64(reg.Handoffs.WithLabelValues(slot)) == want
		})
	}

	for slot, want := range []float64{3, 3, 2, 2} {
		if got := testutil.ToFloat64(reg.Handoffs.WithLabelValues(strconv.Itoa(slot))); got != want {
			t.Errorf("handoffs{slot=%d} = %v, want %v", slot, got, want)
		}
	}
	if got := testutil.ToFloat64(reg.ConnectionsAccepted); got != 10 {
		t.Errorf("accepted = %v, want 10", got)
	}
}

func TestServer_ServesDocumentRoot(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.DocumentRoot, "index.html"), []byte("<h1>hi</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := start(t, Options{Config: cfg})

	resp, err := http.Get("http://" + r.srv.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(body) != "<h1>hi</h1>" {
		t.Errorf("body = %q", body)
	}
}

func TestServer_HangupPostsAndReloads(t *testing.T) {
	poster := &countingPoster{}
	r := start(t, Options{Config: testConfig(t), Handler: answerOK, Restart: poster})
	addr := r.srv.Addr()

	r.signals <- syscall.SIGHUP
	res := r.wait(t)

	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	if res.outcome != OutcomeReload {
		t.Errorf("outcome = %v, want reload", res.outcome)
	}
	if got := poster.posts.Load(); got != 1 {
		t.Errorf("posts = %d, want 1", got)
	}
	if c, err := net.DialTimeout("tcp", addr.String(), time.Second); err == nil {
		c.Close()
		t.Error("listener should be closed after the generation ends")
	}
}

func TestServer_HangupWithoutSemaphore(t *testing.T) {
	r := start(t, Options{Config: testConfig(t), Handler: answerOK})

	r.signals <- syscall.SIGHUP
	res := r.wait(t)
	if res.err != nil || res.outcome != OutcomeTerminate {
		t.Errorf("Run() = %v, %v; want terminate, nil", res.outcome, res.err)
	}
}

func TestServer_HangupPostFails(t *testing.T) {
	poster := &countingPoster{err: errors.New("pipe gone")}
	r := start(t, Options{Config: testConfig(t), Handler: answerOK, Restart: poster})

	r.signals <- syscall.SIGHUP
	res := r.wait(t)
	if res.err == nil {
		t.Error("a failed post should be reported")
	}
	if res.outcome != OutcomeTerminate {
		t.Errorf("outcome = %v, want terminate", res.outcome)
	}
}

func TestServer_Terminate(t *testing.T) {
	for _, sig := range []os.Signal{syscall.SIGTERM, syscall.SIGINT} {
		t.Run(sig.String(), func(t *testing.T) {
			poster := &countingPoster{}
			r := start(t, Options{Config: testConfig(t), Handler: answerOK, Restart: poster})

			r.signals <- sig
			res := r.wait(t)
			if res.err != nil || res.outcome != OutcomeTerminate {
				t.Errorf("Run() = %v, %v; want terminate, nil", res.outcome, res.err)
			}
			if poster.posts.Load() != 0 {
				t.Error("terminate must not post the restart semaphore")
			}
		})
	}
}

func TestServer_ContextCancel(t *testing.T) {
	srv, err := New(Options{Config: testConfig(t), Handler: answerOK, Signals: make(chan os.Signal)})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := srv.Run(ctx)
		done <- outcome
	}()
	<-srv.Ready()
	cancel()

	select {
	case outcome := <-done:
		if outcome != OutcomeTerminate {
			t.Errorf("outcome = %v, want terminate", outcome)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() ignored context cancellation")
	}
}

func TestServer_HealthzListsSlots(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsAddr = "127.0.0.1:0"
	r := start(t, Options{Config: cfg, Generation: "01GEN", Handler: answerOK, Metrics: metric.NewRegistry()})

	for i := 0; i < 3; i++ {
		ask(t, r.srv.Addr())
	}

	addr := r.srv.MetricsAddr()
	if addr == nil {
		t.Fatal("MetricsAddr() = nil with metrics enabled")
	}
	var st httpserver.HealthStatus
	waitFor(t, "three served connections in /healthz", func() bool {
		resp, err := http.Get("http://" + addr.String() + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		st = httpserver.HealthStatus{}
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return false
		}
		var served uint64
		for _, sl := range st.Slots {
			served += sl.Served
		}
		return served == 3
	})

	if st.Status != "ok" || st.Generation != "01GEN" || len(st.Slots) != cfg.Workers {
		t.Fatalf("health = %+v", st)
	}
	for i, sl := range st.Slots {
		want := uint64(0)
		if i < 3 {
			want = 1
		}
		if sl.ID != i || !sl.Alive || sl.Served != want {
			t.Errorf("slot %d = %+v, want live slot %d with %d served", i, sl, i, want)
		}
	}
}

func TestServer_RespawnsDeadWorker(t *testing.T) {
	var calls atomic.Int32
	h := worker.HandlerFunc(func(c net.Conn) error {
		if calls.Add(1) == 1 {
			panic("first request crashes its worker")
		}
		return answerOK(c)
	})

	cfg := testConfig(t)
	cfg.Workers = 2
	reg := metric.NewRegistry()
	r := start(t, Options{Config: cfg, Handler: h, Metrics: reg})

	// Slot 0 dies servicing this connection.
	c, err := net.Dial("tcp", r.srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(c, "ping\n")
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := c.Read(make([]byte, 1)); err == nil {
		t.Error("crashed worker should have closed the connection")
	}
	c.Close()

	waitFor(t, "slot 0 respawn", func() bool {
		return testutil.ToFloat64(reg.WorkerRespawns.WithLabelValues("0")) == 1
	})

	// Slots 1 and 0 in turn; slot 0 holds the replacement worker.
	for i := 0; i < 2; i++ {
		if got := ask(t, r.srv.Addr()); got != "ok" {
			t.Errorf("request %d after respawn = %q, want ok", i, got)
		}
	}
	if got := testutil.ToFloat64(reg.HandoffFailures.WithLabelValues("0")); got != 0 {
		t.Errorf("handoff failures on slot 0 = %v, want 0", got)
	}
}

func TestServer_StartupFailures(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	_, port, _ := net.SplitHostPort(busy.Addr().String())

	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"port in use", func(c *config.Config) { c.Port = port }},
		{"no workers", func(c *config.Config) { c.Workers = 0 }},
		{"unknown user", func(c *config.Config) {
			c.User = "no-such-user-forkhttpd"
			c.Group = "no-such-group-forkhttpd"
		}},
		{"metrics address in use", func(c *config.Config) { c.MetricsAddr = busy.Addr().String() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(cfg)
			srv, err := New(Options{Config: cfg, Handler: answerOK, Signals: make(chan os.Signal)})
			if err != nil {
				t.Fatal(err)
			}

			done := make(chan error, 1)
			go func() {
				_, err := srv.Run(context.Background())
				done <- err
			}()
			select {
			case err := <-done:
				if err == nil {
					t.Error("Run() should fail at startup")
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Run() did not fail")
			}
			select {
			case <-srv.Ready():
				t.Error("a failed startup must not report ready")
			default:
			}
		})
	}
}

func TestOutcome_String(t *testing.T) {
	if OutcomeReload.String() != "reload" || OutcomeTerminate.String() != "terminate" {
		t.Error("unexpected outcome names")
	}
}
