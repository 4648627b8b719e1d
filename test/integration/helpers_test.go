// Package integration holds black-box tests against a running fieldrules
// server:
//
//	fieldrules serve --rules-dir=examples/rules
//	FIELDRULES_URL=http://localhost:8787 FIELDRULES_GRPC=localhost:8788 go test ./test/integration/...
//
// Without FIELDRULES_URL every test is skipped.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// testServer holds the base URL of a running server, or "" when unset.
var testServer string

func init() {
	testServer = os.Getenv("FIELDRULES_URL")
	if testServer == "" {
		return
	}
	// Ensure the URL has a scheme.
	if !strings.HasPrefix(testServer, "http://") && !strings.HasPrefix(testServer, "https://") {
		testServer = "http://" + testServer
	}
}

func requireServer(t *testing.T) {
	t.Helper()
	if testServer == "" {
		t.Skip("FIELDRULES_URL not set; skipping integration test")
	}
}

// apiURL builds a full URL for the given API path.
func apiURL(path string) string {
	return strings.TrimRight(testServer, "/") + "/v1/" + path
}

var ruleSeq atomic.Int64

// uniqueRuleID returns a rule ID that does not collide across test runs
// against the same server.
func uniqueRuleID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), ruleSeq.Add(1))
}

// doJSON sends a request with an optional JSON body and decodes the JSON reply.
func doJSON(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiURL(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode error: %v", method, path, err)
	}
	return resp.StatusCode, out
}

// createRule registers a rule and fails the test if the server refuses it.
func createRule(t *testing.T, id, constraint string) map[string]any {
	t.Helper()
	code, body := doJSON(t, http.MethodPost, "rules?ruleId="+id, map[string]any{"constraint": constraint})
	if code != http.StatusOK {
		t.Fatalf("createRule %s failed with status %d: %v", id, code, body)
	}
	t.Cleanup(func() {
		doJSON(t, http.MethodDelete, "rules/"+id, nil)
	})
	return body
}
