package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/wdaclient/pkg/wda"
	"github.com/tidwall/gjson"
)

// isolate points the default config location at a temporary directory and
// clears the environment overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(EnvURL, "")
	t.Setenv(EnvUDID, "")
	return dir
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigCreateAndShow(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "wdactl", "config.yaml")

	out, err := execute(t, "config", "create", "--config", path,
		"--url", "localhost:8100", "--udid", "00008030-001A", "--timeout", "5s", "--recover")
	require.NoError(t, err)
	assert.Contains(t, out, "Agent configured: http://localhost:8100")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ConfigFormatVersion, cfg.Version)
	assert.Equal(t, "http://localhost:8100", cfg.URL)
	assert.Equal(t, "00008030-001A", cfg.UDID)
	assert.Equal(t, "5s", cfg.Timeout)
	assert.Equal(t, "tidevice", cfg.Recover["command"])

	out, err = execute(t, "config", "show", "--config", path, "-j")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8100", gjson.Get(out, "url").String())
	assert.Equal(t, "tidevice", gjson.Get(out, "recover.command").String())

	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Timeout: 5s")
	assert.Contains(t, out, "Recovery: enabled")
}

func TestConfigCreateDefaultPath(t *testing.T) {
	isolate(t)

	_, err := execute(t, "config", "create", "--url", "http://127.0.0.1:8100")
	require.NoError(t, err)

	path, err := GetDefaultConfigPath()
	require.NoError(t, err)
	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8100", cfg.URL)
	assert.Nil(t, cfg.Recover)
}

func TestConfigCreateRequiresURL(t *testing.T) {
	dir := isolate(t)
	_, err := execute(t, "config", "create", "--config", filepath.Join(dir, "c.yaml"))
	assert.ErrorContains(t, err, "--url is required")

	_, err = execute(t, "config", "create", "--config", filepath.Join(dir, "c.yaml"),
		"--url", "localhost:8100", "--timeout", "soon")
	assert.ErrorContains(t, err, "invalid timeout")
}

func TestConfigTOML(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, filepath.Join(dir, "wdactl.toml"), `
version = "0.1.0"
url = "http://10.0.0.5:8100"
udid = "abc"
timeout = "10s"
log_level = "debug"

[recover]
command = "/usr/local/bin/tidevice"
launch_timeout = "30s"
`)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8100", cfg.URL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/usr/local/bin/tidevice", cfg.Recover["command"])
	assert.Equal(t, "30s", cfg.Recover["launch_timeout"])

	// written back as TOML since the extension says so
	out := filepath.Join(dir, "out.toml")
	require.NoError(t, cfg.WriteConfig(out))
	again, err := ReadConfig(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestReadConfigErrors(t *testing.T) {
	dir := isolate(t)

	_, err := ReadConfig(filepath.Join(dir, "missing.yaml"))
	assert.True(t, os.IsNotExist(err))

	bad := writeFile(t, filepath.Join(dir, "bad.yaml"), "url: [unterminated")
	_, err = ReadConfig(bad)
	assert.ErrorContains(t, err, "unable to parse config file")

	badTOML := writeFile(t, filepath.Join(dir, "bad.toml"), "url = ")
	_, err = ReadConfig(badTOML)
	assert.ErrorContains(t, err, "unable to parse config file")
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, filepath.Join(dir, "config.yaml"), "url: http://file:8100\nudid: from-file\n")

	require.NoError(t, LoadConfig(path))
	assert.Equal(t, "http://file:8100", GetConfig().URL)
	assert.Equal(t, "from-file", GetConfig().UDID)

	t.Setenv(EnvURL, "env:8100")
	t.Setenv(EnvUDID, "from-env")
	require.NoError(t, LoadConfig(path))
	assert.Equal(t, "http://env:8100", GetConfig().URL)
	assert.Equal(t, "from-env", GetConfig().UDID)
}

func TestLoadConfigMissingFile(t *testing.T) {
	dir := isolate(t)
	missing := filepath.Join(dir, "missing.yaml")

	err := LoadConfig(missing)
	assert.True(t, os.IsNotExist(err))

	t.Setenv(EnvURL, "http://env:8100/")
	require.NoError(t, LoadConfig(missing))
	assert.Equal(t, "http://env:8100", GetConfig().URL)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := isolate(t)
	// godotenv never overrides a variable that is already set
	os.Unsetenv(EnvURL)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	writeFile(t, filepath.Join(dir, ".env"), EnvURL+"=http://dotenv:8100\n")
	path := writeFile(t, filepath.Join(dir, "config.yaml"), "url: http://file:8100\n")

	require.NoError(t, LoadConfig(path))
	assert.Equal(t, "http://dotenv:8100", GetConfig().URL)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{URL: "http://localhost:8100"}},
		{name: "valid https with timeout", cfg: Config{URL: "https://device.local:8100", Timeout: "1m"}},
		{name: "missing url", cfg: Config{}, wantErr: "agent url is required"},
		{name: "usbmux", cfg: Config{URL: "http+usbmux://00008030:8100"}, wantErr: "must start with"},
		{name: "bad timeout", cfg: Config{URL: "http://h:1", Timeout: "soon"}, wantErr: "invalid timeout"},
		{name: "negative timeout", cfg: Config{URL: "http://h:1", Timeout: "-1s"}, wantErr: "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateConfig()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestGetTimeout(t *testing.T) {
	d, err := (&Config{}).GetTimeout()
	require.NoError(t, err)
	assert.Equal(t, wda.DefaultTimeout, d)

	d, err = (&Config{Timeout: "1500ms"}).GetTimeout()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestMorphURL(t *testing.T) {
	tests := map[string]string{
		"":                       "",
		"localhost:8100":         "http://localhost:8100",
		"http://localhost:8100/": "http://localhost:8100",
		"https://device:8100//":  "https://device:8100",
	}
	for in, want := range tests {
		assert.Equal(t, want, MorphURL(in), in)
	}
}
