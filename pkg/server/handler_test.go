package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*httptest.Server, *Health) {
	t.Helper()
	pool := NewPool(4, 64)
	t.Cleanup(pool.Close)
	health := NewHealth()
	exec := NewExecutor(zerolog.Nop(), pool, health)
	h := NewHandler(zerolog.Nop(), health, exec)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv, health
}

func post(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/fidi", "application/x-www-form-urlencoded",
		strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHandlerMinimalEcho(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	resp := post(t, srv, `[ response = 204 ]`)
	if resp.StatusCode != 204 {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

func TestHandlerStatusFromRequest(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	resp := post(t, srv, `[ response = 500 ]`)
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Hello world!") {
		t.Errorf("body = %q, want the HTML envelope", body)
	}
	if !strings.Contains(string(body), "Count:") {
		t.Errorf("body = %q, want the request counter", body)
	}
}

func TestHandlerRejectsUndefinedDestination(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	resp := post(t, srv, `[ response = 200, -> ghost sequence = 1 [ response = 200 ] ]`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Destination node ghost not defined") {
		t.Errorf("body = %q, want the validator diagnostic", body)
	}
}

func TestHandlerRejectsSyntaxErrors(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	resp := post(t, srv, `[ response 200 ]`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Parse Syntax Errors") {
		t.Errorf("body = %q, want the syntax error section", body)
	}
}

func TestHandlerDoesNotFanOutOnValidationFailure(t *testing.T) {
	t.Parallel()
	called := make(chan struct{}, 1)
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called <- struct{}{}
	}))
	defer peer.Close()

	srv, _ := newTestServer(t)
	// The ghost edge makes the document invalid; the peer call must not happen.
	resp := post(t, srv, `[ response = 200, .a [ url = "`+peer.URL+`" ],
		-> a [ response = 200 ], -> ghost [ response = 200 ] ]`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	select {
	case <-called:
		t.Error("fan-out happened despite validation failure")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerHealthz(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	get := func() int {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatalf("GET /healthz: %v", err)
		}
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	if code := get(); code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", code)
	}
	post(t, srv, `[ response = 200, healthy = false ]`)
	if code := get(); code != http.StatusServiceUnavailable {
		t.Errorf("healthz = %d, want 503 after healthy=false", code)
	}
	post(t, srv, `[ response = 200, healthy = true ]`)
	if code := get(); code != http.StatusOK {
		t.Errorf("healthz = %d, want 200 after healthy=true", code)
	}
}

func TestHandlerDropsConnectionsWhileUnresponsive(t *testing.T) {
	t.Parallel()
	srv, health := newTestServer(t)
	health.SetUnresponsiveFor(500 * time.Millisecond)

	client := &http.Client{Timeout: 2 * time.Second}
	if _, err := client.Get(srv.URL + "/healthz"); err == nil {
		t.Error("expected the connection to be dropped during the window")
	}
	if _, err := client.Post(srv.URL+"/fidi", "application/x-www-form-urlencoded",
		strings.NewReader(`[ response = 200 ]`)); err == nil {
		t.Error("expected request traffic to be dropped during the window")
	}

	time.Sleep(600 * time.Millisecond)
	resp, err := client.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET after window: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d, want 200 once the window closes", resp.StatusCode)
	}
}

func TestHandlerCountsRequests(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	post(t, srv, `[ response = 200 ]`)
	resp := post(t, srv, `[ response = 200 ]`)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Count: 2") {
		t.Errorf("body = %q, want Count: 2", body)
	}
}
