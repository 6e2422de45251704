package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravi-parthasarathy/fidi/pkg/request"
)

func newTestExecutor(t *testing.T) (*Executor, *Health) {
	t.Helper()
	pool := NewPool(4, 64)
	t.Cleanup(pool.Close)
	health := NewHealth()
	return NewExecutor(zerolog.Nop(), pool, health), health
}

func executeSrc(t *testing.T, ex *Executor, src string) *httptest.ResponseRecorder {
	t.Helper()
	m := request.Parse(src)
	if n, msg := m.Errors(); n != 0 {
		t.Fatalf("parse errors (%d):\n%s", n, msg)
	}
	if warnings, msg := request.Validate(m); warnings != 0 {
		t.Fatalf("validation warnings (%d):\n%s", warnings, msg)
	}
	rec := httptest.NewRecorder()
	ex.Execute(context.Background(), m, rec)
	return rec
}

func TestExecutorSetsStatus(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExecutor(t)
	rec := executeSrc(t, ex, `[ response = 418 ]`)
	if rec.Code != 418 {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

func TestExecutorMinimalEchoIsFast(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExecutor(t)
	start := time.Now()
	rec := executeSrc(t, ex, `[ response = 204 ]`)
	if rec.Code != 204 {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("empty fan-out took %v", elapsed)
	}
}

func TestExecutorDelayBracket(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExecutor(t)
	start := time.Now()
	rec := executeSrc(t, ex, `[ response = 200, predelay = 100, postdelay = 50 ]`)
	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 150ms", elapsed)
	}
}

func TestExecutorParallelRepeat(t *testing.T) {
	t.Parallel()
	var current, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		current.Add(-1)
	}))
	defer srv.Close()

	ex, _ := newTestExecutor(t)
	src := fmt.Sprintf(`[ response = 200, .a [ url = "%s/fidi" ],
		-> a repeat = 4 sequence = 1 [ response = 200 ] ]`, srv.URL)
	executeSrc(t, ex, src)

	if got := peak.Load(); got != 4 {
		t.Errorf("peak concurrency = %d, want 4", got)
	}
}

func TestExecutorSequenceBarrier(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	starts := map[string][]time.Time{}
	ends := map[string][]time.Time{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts[r.URL.Path] = append(starts[r.URL.Path], time.Now())
		mu.Unlock()
		time.Sleep(100 * time.Millisecond)
		mu.Lock()
		ends[r.URL.Path] = append(ends[r.URL.Path], time.Now())
		mu.Unlock()
	}))
	defer srv.Close()

	ex, _ := newTestExecutor(t)
	start := time.Now()
	src := fmt.Sprintf(`[ response = 200,
		.one [ url = "%s/one" ], .two [ url = "%s/two" ],
		-> one sequence = 1 repeat = 2 [ response = 200 ],
		-> two sequence = 2            [ response = 200 ] ]`, srv.URL, srv.URL)
	executeSrc(t, ex, src)

	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("elapsed = %v, want the groups serialized", elapsed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(starts["/one"]) != 2 || len(starts["/two"]) != 1 {
		t.Fatalf("calls: /one=%d /two=%d, want 2 and 1", len(starts["/one"]), len(starts["/two"]))
	}
	twoStart := starts["/two"][0]
	for _, end := range ends["/one"] {
		if end.After(twoStart) {
			t.Errorf("sequence 1 call finished at %v, after sequence 2 started at %v", end, twoStart)
		}
	}
}

func TestExecutorForwardsTopology(t *testing.T) {
	t.Parallel()
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- string(body)
	}))
	defer srv.Close()

	ex, _ := newTestExecutor(t)
	src := fmt.Sprintf(`[ response = 200, .a [ url = "%s/fidi" ],
		-> a [ response = 503, log_warning = "downstream" ] ]`, srv.URL)
	executeSrc(t, ex, src)

	forwarded := <-bodies
	peer := request.Parse(forwarded)
	if n, msg := peer.Errors(); n != 0 {
		t.Fatalf("forwarded body does not parse (%d):\n%s\n%s", n, msg, forwarded)
	}
	if peer.TopAttrs["response"] != "503" {
		t.Errorf("peer response = %q, want 503", peer.TopAttrs["response"])
	}
	if _, ok := peer.Nodes["a"]; !ok {
		t.Error("peer did not inherit the node table")
	}
}

func TestExecutorDefaultPath(t *testing.T) {
	t.Parallel()
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	ex, _ := newTestExecutor(t)
	src := fmt.Sprintf(`[ response = 200,
		.a [ hostname = "%s", port = %s ],
		-> a [ response = 200 ] ]`, u.Hostname(), u.Port())
	executeSrc(t, ex, src)

	if got := <-paths; got != "/fidi" {
		t.Errorf("path = %q, want /fidi", got)
	}
}

func TestExecutorTogglesHealth(t *testing.T) {
	t.Parallel()
	ex, health := newTestExecutor(t)
	executeSrc(t, ex, `[ response = 200, healthy = false ]`)
	if health.Healthy() {
		t.Error("expected unhealthy after healthy=false request")
	}
	executeSrc(t, ex, `[ response = 200, healthy = true ]`)
	if !health.Healthy() {
		t.Error("expected healthy after healthy=true request")
	}
}

func TestExecutorSetsUnresponsiveWindow(t *testing.T) {
	t.Parallel()
	ex, health := newTestExecutor(t)
	executeSrc(t, ex, `[ response = 200, unresponsive_for_usec = 900000 ]`)
	if health.Responsive() {
		t.Error("expected the unresponsive window to open")
	}
	time.Sleep(time.Second)
	if !health.Responsive() {
		t.Error("expected the window to close")
	}
}

func TestDestURL(t *testing.T) {
	t.Parallel()
	n := &request.Node{Name: "a", Attrs: map[string]string{"url": "http://x/y"}}
	if got := destURL(n); got != "http://x/y" {
		t.Errorf("url attr: got %q", got)
	}
	n = &request.Node{Name: "a", Attrs: map[string]string{"hostname": "h", "port": "81"}}
	if got := destURL(n); got != "http://h:81/fidi" {
		t.Errorf("hostname+port: got %q", got)
	}
	n.Attrs["path"] = "/mock"
	if got := destURL(n); got != "http://h:81/mock" {
		t.Errorf("path attr: got %q", got)
	}
}
