package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kbirk/wamp/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wampctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := loadConfig("wampctl.example.toml")
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/ws", cfg.URL)
	assert.Equal(t, "realm1", cfg.Realm)
	assert.Equal(t, "cbor", cfg.Serializer)
	assert.Equal(t, 5*time.Second, cfg.CloseTimeout)
	assert.Equal(t, auth.MethodWAMPCRA, cfg.Auth.Method)
	assert.Equal(t, "wamp-cra-user", cfg.Auth.AuthID)
	assert.Equal(t, "cra-secret", cfg.Auth.Secret)
	assert.Equal(t, time.Second, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 2.0, cfg.Reconnect.Multiplier)
	assert.True(t, cfg.Reconnect.Jitter)

	a, err := cfg.authenticator()
	require.NoError(t, err)
	assert.Equal(t, auth.MethodWAMPCRA, a.AuthMethod())
	assert.Equal(t, "wamp-cra-user", a.AuthID())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `realm = "other"`))
	require.NoError(t, err)

	defaults := defaultConfig()
	assert.Equal(t, "other", cfg.Realm)
	assert.Equal(t, defaults.URL, cfg.URL)
	assert.Equal(t, defaults.Serializer, cfg.Serializer)
	assert.Equal(t, defaults.Reconnect, cfg.Reconnect)

	a, err := cfg.authenticator()
	require.NoError(t, err)
	assert.Equal(t, auth.MethodAnonymous, a.AuthMethod())
}

func TestLoadConfigCryptosign(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `
serializer = "MsgPack"

[auth]
method = "cryptosign"
authid = "cryptosign-user"
private_key = "150085398329d255ad69e82bf47ced397bcec5b8fbeecd28a80edbbd85b49081"
`))
	require.NoError(t, err)
	assert.Equal(t, "msgpack", cfg.Serializer)

	a, err := cfg.authenticator()
	require.NoError(t, err)
	assert.Equal(t, auth.MethodCryptosign, a.AuthMethod())
	assert.Contains(t, a.AuthExtra(), "pubkey")
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", `url = `},
		{"unknown key", `colour = "red"`},
		{"bad duration", `close_timeout = "soon"`},
		{"bad reconnect delay", "[reconnect]\ninitial_delay = \"fast\""},
		{"unknown serializer", `serializer = "xml"`},
		{"unknown auth method", "[auth]\nmethod = \"kerberos\""},
		{"empty realm", `realm = ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	defer func() {
		url, realm, format, logLevel = "", "", "", ""
	}()

	url = "rs://127.0.0.1:9000"
	realm = "flagged"
	format = "JSON"
	logLevel = "debug"

	cfg := applyFlags(defaultConfig())
	assert.Equal(t, "rs://127.0.0.1:9000", cfg.URL)
	assert.Equal(t, "flagged", cfg.Realm)
	assert.Equal(t, "json", cfg.Serializer)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.NoError(t, cfg.validate())
}

func TestParseArgs(t *testing.T) {
	args := parseArgs([]string{"1", "2.5", "true", `{"a":1}`, "[1,2]", "hello", `"quoted"`})
	assert.Equal(t, []any{
		float64(1),
		2.5,
		true,
		map[string]any{"a": float64(1)},
		[]any{float64(1), float64(2)},
		"hello",
		"quoted",
	}, args)

	assert.Empty(t, parseArgs(nil))
}

func TestFormatPayload(t *testing.T) {
	assert.Equal(t, `[1,"a"] {"k":"v"}`, formatPayload([]any{1, "a"}, map[string]any{"k": "v"}))
	assert.Equal(t, `{"k":"v"}`, formatPayload(nil, map[string]any{"k": "v"}))
	assert.Equal(t, "", formatPayload(nil, nil))
}
