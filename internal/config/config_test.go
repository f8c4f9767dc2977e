package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.APIURL, cfg.APIURL)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, CaptureDaemon, cfg.Capture)
	assert.Equal(t, StoreRemote, cfg.Store)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
api_url: https://speakify.example.com/
timeout: 15s
http2: true
language: de-CH
capture: portaudio
sample_rate: 48000
store: sqlite
db_path: /tmp/speakify.sqlite
notify: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://speakify.example.com", cfg.APIURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.True(t, cfg.HTTP2)
	assert.Equal(t, "de", cfg.Language)
	assert.Equal(t, CapturePortAudio, cfg.Capture)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "/tmp/speakify.sqlite", cfg.DBPath)
	assert.False(t, cfg.Notify)
	// untouched keys keep their defaults
	assert.Equal(t, "whisper-1", cfg.OpenAIModel)
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "language: fr\ntimeout: 10s\n")

	t.Setenv("SPEAKIFY_LANGUAGE", "es")
	t.Setenv("SPEAKIFY_TIMEOUT", "90s")
	t.Setenv("SPEAKIFY_NOTIFY", "false")
	t.Setenv("SPEAKIFY_SAMPLE_RATE", "22050")
	t.Setenv("OPENAI_API_KEY", "sk-plain")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "es", cfg.Language)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.False(t, cfg.Notify)
	assert.Equal(t, 22050, cfg.SampleRate)
	assert.Equal(t, "sk-plain", cfg.OpenAIKey)

	t.Setenv("SPEAKIFY_OPENAI_API_KEY", "sk-prefixed")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-prefixed", cfg.OpenAIKey)
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "SPEAKIFY_TEST_ENVFILE_TOKEN=from-file\n")
	t.Cleanup(func() { os.Unsetenv("SPEAKIFY_TEST_ENVFILE_TOKEN") })

	_, err := Load("", filepath.Join(dir, "absent.env"), envPath)
	require.NoError(t, err)
	assert.Equal(t, "from-file", os.Getenv("SPEAKIFY_TEST_ENVFILE_TOKEN"))
}

func TestEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "SPEAKIFY_TOKEN=from-file\n")
	t.Setenv("SPEAKIFY_TOKEN", "from-env")

	cfg, err := Load("", envPath)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Token)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad yaml", yaml: "language: [unterminated"},
		{name: "bad language", yaml: "language: not_a_language_tag!"},
		{name: "bad capture", yaml: "capture: tape"},
		{name: "bad store", yaml: "store: floppy"},
		{name: "bad sample rate", yaml: "sample_rate: 0"},
		{name: "bad env duration", env: map[string]string{"SPEAKIFY_TIMEOUT": "soon"}},
		{name: "bad env bool", env: map[string]string{"SPEAKIFY_HTTP2": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeFile(t, dir, "config.yaml", tt.yaml)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("speakify", "config.yaml"),
		filepath.Join(filepath.Base(filepath.Dir(DefaultPath())), filepath.Base(DefaultPath())))
}
