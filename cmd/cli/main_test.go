package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPrintNamesSorted(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printNames(&out, map[string]string{"2": "Bob", "1": "Alice"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Alice")
	assert.Contains(t, lines[2], "Bob")
}

func TestSendCommand(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		body = buf.String()
		_, _ = w.Write([]byte(`{"success":true,"message":"Message sent to John","contact_id":"15550001111"}`))
	}))
	defer srv.Close()

	out, err := run(t, "--api-url", srv.URL, "send", `"hi there"`, "to", "John", "--alias", "john=15550001111")
	require.NoError(t, err)
	assert.Equal(t, "Message sent to John (15550001111)\n", out)
	assert.Contains(t, body, `"command":"send \"hi there\" to John"`)
	assert.Contains(t, body, `"john":"15550001111"`)
}

func TestSendCommandFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"Contact 'Zed' not found in aliases"}`))
	}))
	defer srv.Close()

	_, err := run(t, "--api-url", srv.URL, "send", "hi", "to", "Zed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, writeFile(cfgPath, "[auth]\njwt_secret = \"s3cret\"\n"))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "token", "--subject", "ops"})
	require.NoError(t, cmd.Execute())

	parsed, err := jwt.Parse(strings.TrimSpace(out.String()), func(*jwt.Token) (any, error) {
		return []byte("s3cret"), nil
	})
	require.NoError(t, err)
	subject, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "ops", subject)
}

func TestTokenCommandWithoutSecret(t *testing.T) {
	_, err := run(t, "token")
	require.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
