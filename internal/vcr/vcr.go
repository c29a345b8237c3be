// Package vcr records and replays platform HTTP traffic in tests.
//
// VCR_MODE selects the behaviour: "replay" (default) serves responses from
// testdata/cassettes/<TestName>.yaml, "record" talks to the platform with
// DATALOOP_TOKEN and rewrites the cassette, "off" disables the recorder.
package vcr

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/dnaeon/go-vcr.v3/cassette"
	"gopkg.in/dnaeon/go-vcr.v3/recorder"

	"github.com/dataloop-tools/dataloop-go/internal/https"
	intlogger "github.com/dataloop-tools/dataloop-go/internal/logger"
)

// DefaultAPIURL is the base URL cassettes are recorded against.
const DefaultAPIURL = "https://gate.dataloop.ai/api/v1"

const redacted = "<redacted>"

// Mode is the recorder mode.
type Mode string

const (
	ModeOff    Mode = "off"
	ModeRecord Mode = "record"
	ModeReplay Mode = "replay"
)

// ModeFromEnv reads VCR_MODE. Unknown values fall back to replay.
func ModeFromEnv() Mode {
	switch m := Mode(os.Getenv("VCR_MODE")); m {
	case ModeOff, ModeRecord:
		return m
	default:
		return ModeReplay
	}
}

// Transport returns a recorder for the test's cassette, stopped when the
// test ends. It returns nil in ModeOff.
func Transport(t *testing.T, base http.RoundTripper) http.RoundTripper {
	t.Helper()

	mode := recorder.ModeReplayOnly
	switch ModeFromEnv() {
	case ModeOff:
		return nil
	case ModeRecord:
		mode = recorder.ModeRecordOnly
	}

	r, err := recorder.NewWithOptions(&recorder.Options{
		CassetteName:       filepath.Join("testdata", "cassettes", t.Name()),
		Mode:               mode,
		RealTransport:      base,
		SkipRequestLatency: true,
	})
	if err != nil {
		t.Fatalf("vcr: open cassette: %v", err)
	}
	r.SetMatcher(matchRequest)
	r.AddHook(scrub, recorder.BeforeSaveHook)

	t.Cleanup(func() {
		if err := r.Stop(); err != nil {
			t.Errorf("vcr: stop recorder: %v", err)
		}
	})
	return r
}

// NewHTTPClient returns an http.Client that goes through the test's cassette.
func NewHTTPClient(t *testing.T) *http.Client {
	t.Helper()

	hc := &http.Client{Timeout: 30 * time.Second}
	if rt := Transport(t, http.DefaultTransport); rt != nil {
		hc.Transport = rt
	}
	return hc
}

// NewClient returns a platform client backed by the test's cassette. It
// skips in -short mode.
func NewClient(t *testing.T) *https.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping cassette test in short mode")
	}

	mode := ModeFromEnv()
	token := os.Getenv("DATALOOP_TOKEN")
	apiURL := os.Getenv("DATALOOP_API_URL")
	switch {
	case mode == ModeReplay:
		token, apiURL = "replay-token", DefaultAPIURL
	case token == "":
		t.Fatalf("DATALOOP_TOKEN is required when VCR_MODE=%s", mode)
	case apiURL == "":
		apiURL = DefaultAPIURL
	}

	return https.NewWrappedClient(token, apiURL, NewHTTPClient(t), intlogger.NewFailTestLogger(t))
}

// matchRequest compares method, URL and, for requests with a body, the
// body itself. Redacted auth bodies match any login.
func matchRequest(r *http.Request, i cassette.Request) bool {
	if r.Method != i.Method || r.URL.String() != i.URL {
		return false
	}
	if r.Body == nil || r.Body == http.NoBody || strings.Contains(i.Body, redacted) {
		return true
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return string(body) == i.Body
}

// scrub drops credentials from an interaction before it is written.
func scrub(i *cassette.Interaction) error {
	for _, h := range []http.Header{i.Request.Headers, i.Response.Headers} {
		for key := range h {
			switch strings.ToLower(key) {
			case "authorization", "cookie", "set-cookie", "x-request-id":
				delete(h, key)
			}
		}
	}

	if strings.Contains(i.Request.URL, "/auth/") {
		i.Request.Body = `{"username":"` + redacted + `","password":"` + redacted + `"}`
		i.Response.Body = `{"access_token":"` + redacted + `","expires_in":3600}`
	}
	return nil
}
