package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Caller performs one downstream HTTP POST. Any I/O, DNS, timeout, or
// protocol failure is logged and swallowed: downstream failure is a
// modeled property of the mock, never surfaced to the inbound response.
type Caller struct {
	URL     string
	Payload string
	Timeout time.Duration
}

// Call makes the request. When Timeout is zero the platform default
// applies. The response body is drained and discarded; only the reason
// phrase is logged, at information level.
func (c *Caller) Call(logger zerolog.Logger) {
	logger.Info().Str("payload", c.Payload).Msgf("Making call to %s", c.URL)

	client := &http.Client{Timeout: c.Timeout}
	resp, err := client.Post(c.URL, "application/x-www-form-urlencoded",
		strings.NewReader(c.Payload))
	if err != nil {
		logger.Error().Err(err).Msgf("Call to %s failed", c.URL)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	logger.Info().Msg(reasonPhrase(resp))
}

// reasonPhrase extracts the status reason from a response, falling back
// to the standard text for the code.
func reasonPhrase(resp *http.Response) string {
	if idx := strings.IndexByte(resp.Status, ' '); idx >= 0 {
		return resp.Status[idx+1:]
	}
	return http.StatusText(resp.StatusCode)
}
