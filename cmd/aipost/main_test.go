package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestModelsCommand(t *testing.T) {
	out, _, err := run(t, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "glm-4-flash")
	assert.Contains(t, out, "claude-3-5-sonnet")
	assert.True(t, strings.HasPrefix(out, "ID"))
}

func TestTemplatesCommand(t *testing.T) {
	out, _, err := run(t, "templates", "linkedin")
	require.NoError(t, err)
	assert.Contains(t, out, "linkedin")
	assert.NotContains(t, out, "tweet-")

	_, _, err = run(t, "templates", "blog")
	assert.Error(t, err)
}

func TestCostCommand(t *testing.T) {
	out, _, err := run(t, "cost", "--model", "gpt-4o", "--in", "1000000", "--out", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "gpt-4o")
	assert.Contains(t, out, "$")

	_, _, err = run(t, "cost", "--model", "nope")
	assert.Error(t, err)
}

func TestInvalidStoreDriverFromEnv(t *testing.T) {
	t.Setenv("AIPOST_STORE_DRIVER", "cassandra")
	_, _, err := run(t, "models")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func zhipuServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "glm-4-flash", body["model"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","model":"glm-4-flash",
			"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":8,"total_tokens":20}}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aipost.yaml")
	cfg := fmt.Sprintf(`backends:
  zhipu:
    api_key: test-id.test-secret
    base_url: %s
store:
  driver: sqlite
  dsn: %s
log:
  level: warn
`, baseURL, filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestGenerateDebitsQuota(t *testing.T) {
	srv := zhipuServer(t, "今天学了 Go 🚀")
	cfgPath := writeConfig(t, srv.URL)

	out, summary, err := run(t, "-c", cfgPath, "generate", "--user", "u1", "--type", "tweet", "学习 Go")
	require.NoError(t, err)
	assert.Equal(t, "今天学了 Go 🚀\n", out)
	assert.Contains(t, summary, "model glm-4-flash (zhipu)")
	assert.Contains(t, summary, "12 in + 8 out")
	assert.Contains(t, summary, "quota u1 (free): 20/10000 used")

	out, _, err = run(t, "-c", cfgPath, "quota", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "20/10000 used, 9980 remaining")
}

func TestGenerateRejectsUnknownPlan(t *testing.T) {
	_, _, err := run(t, "generate", "--plan", "gold", "idea")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown plan")
}

func TestRolloverCommand(t *testing.T) {
	t.Setenv("AIPOST_STORE_DRIVER", "sqlite")
	t.Setenv("AIPOST_STORE_DSN", filepath.Join(t.TempDir(), "quota.db"))

	out, _, err := run(t, "rollover")
	require.NoError(t, err)
	assert.Equal(t, "rolled 0 quota(s)\n", out)
}
