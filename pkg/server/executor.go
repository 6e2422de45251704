package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravi-parthasarathy/fidi/pkg/logging"
	"github.com/ravi-parthasarathy/fidi/pkg/request"
)

// Resident and maximum downstream caller counts for the shared pool.
const (
	PoolMinWorkers = 16
	PoolMaxWorkers = 1024
)

// Executor drives a validated request model: it sets the response status,
// applies the pre and post delays, fans the downstream calls out in
// sequence order, emits the requested log lines, and updates the node's
// health state. The executor exclusively owns the model while executing.
type Executor struct {
	logger zerolog.Logger
	pool   *Pool
	health *Health
}

// NewExecutor wires an executor to the shared pool and health state.
func NewExecutor(logger zerolog.Logger, pool *Pool, health *Health) *Executor {
	return &Executor{logger: logger, pool: pool, health: health}
}

// Execute runs the request. The status line is written before anything
// else so the response code is committed ahead of the body; the caller
// writes the body once Execute returns. Sleeps abort early when ctx is
// cancelled, but in-flight downstream calls always run to completion.
func (ex *Executor) Execute(ctx context.Context, m *request.Model, w http.ResponseWriter) {
	ex.logger.Info().Msg("Handle request")

	w.WriteHeader(attrInt(m.TopAttrs, "response", http.StatusOK))

	if ms, ok := m.TopAttrs["predelay"]; ok {
		sleep(ctx, time.Duration(atoi(ms))*time.Millisecond)
	}

	timeout := time.Duration(attrInt(m.TopAttrs, "timeout_sec", 0))*time.Second +
		time.Duration(attrInt(m.TopAttrs, "timeout_usec", 0))*time.Microsecond

	// Groups run strictly in ascending sequence order; every call in a
	// group, across edges and repetitions, runs in parallel, and the
	// group joins before the next one starts.
	for _, group := range m.GroupedEdges() {
		var wg sync.WaitGroup
		for _, e := range group {
			c := &Caller{
				URL:     destURL(m.Nodes[e.Dest]),
				Payload: m.ForwardPayload(e),
				Timeout: timeout,
			}
			reps := e.Repeat
			if reps < 1 {
				reps = 1
			}
			for i := 0; i < reps; i++ {
				wg.Add(1)
				ex.pool.Submit(func() {
					defer wg.Done()
					c.Call(ex.logger)
				})
			}
		}
		wg.Wait()
	}

	for _, l := range logging.Levels {
		if msg, ok := m.TopAttrs[l.Attr]; ok {
			logging.Emit(&ex.logger, l, msg)
		}
	}

	if v, ok := m.TopAttrs["healthy"]; ok {
		ex.health.SetHealthy(v == "true")
	}

	_, hasSec := m.TopAttrs["unresponsive_for_sec"]
	_, hasUsec := m.TopAttrs["unresponsive_for_usec"]
	if hasSec || hasUsec {
		d := time.Duration(attrInt(m.TopAttrs, "unresponsive_for_sec", 0))*time.Second +
			time.Duration(attrInt(m.TopAttrs, "unresponsive_for_usec", 0))*time.Microsecond
		ex.health.SetUnresponsiveFor(d)
	}

	if ms, ok := m.TopAttrs["postdelay"]; ok {
		sleep(ctx, time.Duration(atoi(ms))*time.Millisecond)
	}
}

// destURL builds the target URL for a node: the url attribute when given,
// otherwise http://<hostname>:<port> with the node's path or /fidi.
func destURL(n *request.Node) string {
	if u, ok := n.Attrs["url"]; ok {
		return u
	}
	path, ok := n.Attrs["path"]
	if !ok {
		path = "/fidi"
	}
	return "http://" + n.Attrs["hostname"] + ":" + n.Attrs["port"] + path
}

// sleep pauses for d, returning early if ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func attrInt(attrs map[string]string, key string, fallback int) int {
	v, ok := attrs[key]
	if !ok {
		return fallback
	}
	return atoi(v)
}

// atoi parses a validated integer attribute; validation has already
// rejected malformed values, so failures simply yield zero.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
