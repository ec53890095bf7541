package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DocumentRoot != "" {
		t.Errorf("DocumentRoot = %q, want empty", cfg.DocumentRoot)
	}
	if cfg.IndexPage != DefaultIndexPage {
		t.Errorf("IndexPage = %q, want %q", cfg.IndexPage, DefaultIndexPage)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.Workers != DefaultWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Workers, DefaultWorkers)
	}
	if !cfg.Jail {
		t.Error("Jail should be enabled by default")
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.LogFormat != DefaultLogFormat {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, DefaultLogFormat)
	}
	if cfg.StopTimeout != DefaultStopTimeout {
		t.Errorf("StopTimeout = %v, want %v", cfg.StopTimeout, DefaultStopTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(LoadOptions{
		Overrides: map[string]any{"document_root": root, "port": "8080"},
		EnvPrefix: "FORKHTTPD_TEST_NONE_",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DocumentRoot != root {
		t.Errorf("DocumentRoot = %q, want %q", cfg.DocumentRoot, root)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.IndexPage != DefaultIndexPage {
		t.Errorf("IndexPage = %q, want default", cfg.IndexPage)
	}
	if cfg.CanReload() {
		t.Error("record without a file should not be reloadable")
	}
}

func TestLoad_DirectiveFile(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, "webserver.conf", strings.Join([]string{
		"# site",
		"document-root " + root,
		"index-page home.html",
		"user nobody",
		"group nogroup",
		"workers 2",
		"",
	}, "\n"))

	cfg, err := Load(LoadOptions{File: path, EnvPrefix: "FORKHTTPD_TEST_NONE_"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DocumentRoot != root {
		t.Errorf("DocumentRoot = %q, want %q", cfg.DocumentRoot, root)
	}
	if cfg.IndexPage != "/home.html" {
		t.Errorf("IndexPage = %q, want %q", cfg.IndexPage, "/home.html")
	}
	if user, group, ok := cfg.Credentials(); !ok || user != "nobody" || group != "nogroup" {
		t.Errorf("Credentials() = %q, %q, %v", user, group, ok)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, "forkhttpd.yaml", `
document_root: `+root+`
port: 8081
jail: false
stop_timeout: 3s
metrics_addr: 127.0.0.1:9100
`)

	cfg, err := Load(LoadOptions{File: path, EnvPrefix: "FORKHTTPD_TEST_NONE_"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8081" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8081")
	}
	if cfg.Jail {
		t.Error("Jail should be false")
	}
	if cfg.StopTimeout != 3*time.Second {
		t.Errorf("StopTimeout = %v, want 3s", cfg.StopTimeout)
	}
	if cfg.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
}

func TestLoad_Precedence(t *testing.T) {
	fileRoot := t.TempDir()
	flagRoot := t.TempDir()
	path := writeConfig(t, "forkhttpd.conf", "document-root "+fileRoot+"\nport 1000\nworkers 2\n")

	t.Setenv("FORKHTTPD_PORT", "2000")
	t.Setenv("FORKHTTPD_WORKERS", "3")

	cfg, err := Load(LoadOptions{
		File:      path,
		Overrides: map[string]any{"document_root": flagRoot, "workers": 5},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DocumentRoot != flagRoot {
		t.Errorf("DocumentRoot = %q, want flag value %q", cfg.DocumentRoot, flagRoot)
	}
	if cfg.Port != "2000" {
		t.Errorf("Port = %q, want env value 2000", cfg.Port)
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want flag value 5", cfg.Workers)
	}
}

func TestLoad_Errors(t *testing.T) {
	root := t.TempDir()
	plain := filepath.Join(root, "plain.txt")
	if err := os.WriteFile(plain, []byte("x"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing root", "index-page /a.html\n", "document_root is required"},
		{"unknown key", "document-root " + root + "\nlisten 0.0.0.0\n", "unknown parameter listen"},
		{"bad workers", "document-root " + root + "\nworkers 0\n", "workers"},
		{"bad level", "document-root " + root + "\nlog-level loud\n", "log_level"},
		{"root is file", "document-root " + plain + "\n", "not a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "forkhttpd.conf", tt.content)
			_, err := Load(LoadOptions{File: path, EnvPrefix: "FORKHTTPD_TEST_NONE_"})
			if err == nil {
				t.Fatal("Load() should fail")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Load() error = %T, want *ConfigError", err)
			}
			if cfgErr.Path != path {
				t.Errorf("ConfigError.Path = %q, want %q", cfgErr.Path, path)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(LoadOptions{File: "/nonexistent/forkhttpd.conf"})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want *ConfigError", err)
	}
}

func TestReload(t *testing.T) {
	oldRoot := t.TempDir()
	newRoot := t.TempDir()
	path := writeConfig(t, "forkhttpd.conf", "document-root "+oldRoot+"\n")

	first, err := Load(LoadOptions{File: path, Overrides: map[string]any{"workers": 7}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if first.DocumentRoot != oldRoot {
		t.Fatalf("DocumentRoot = %q, want %q", first.DocumentRoot, oldRoot)
	}

	if err := os.WriteFile(path, []byte("document-root "+newRoot+"\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	second, err := Reload(first.ConfigFile)
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if second.DocumentRoot != newRoot {
		t.Errorf("DocumentRoot after reload = %q, want %q", second.DocumentRoot, newRoot)
	}
	if second.Workers != DefaultWorkers {
		t.Errorf("Workers after reload = %d, want default %d", second.Workers, DefaultWorkers)
	}
	if first.DocumentRoot != oldRoot {
		t.Error("reload must not modify the previous record")
	}
}

func TestReload_NoFile(t *testing.T) {
	_, err := Reload("")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Reload(\"\") error = %v, want *ConfigError", err)
	}
}

func TestKnownKeys(t *testing.T) {
	keys := KnownKeys()
	sort.Strings(keys)

	for _, want := range []string{"document_root", "index_page", "port", "user", "group", "workers"} {
		i := sort.SearchStrings(keys, want)
		if i >= len(keys) || keys[i] != want {
			t.Errorf("KnownKeys() missing %q", want)
		}
	}
	for _, k := range keys {
		if k == "config_file" {
			t.Error("config_file must not be settable from a source")
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	cfg := Default()
	cfg.DocumentRoot = t.TempDir()
	cfg.User = "www"
	cfg.Group = "www"
	cfg.StopTimeout = 1500 * time.Millisecond

	b, err := Encode(cfg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("Decode(Encode()) = %+v, want %+v", got, cfg)
	}
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode([]byte("document_root: /\nshards: 3\n"))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Decode() error = %v, want *ConfigError", err)
	}
}

func TestVerify(t *testing.T) {
	root := t.TempDir()
	valid := func() *Config {
		cfg := Default()
		cfg.DocumentRoot = root
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"zero backlog", func(c *Config) { c.Backlog = 0 }, true},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "9100" }, true},
		{"zero timeout", func(c *Config) { c.ReadTimeout = 0 }, true},
		{"watch without file", func(c *Config) { c.Watch = true }, true},
		{"root index", func(c *Config) { c.IndexPage = "/" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Verify(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		host, port, want string
	}{
		{"", "http", ":http"},
		{"127.0.0.1", "8080", "127.0.0.1:8080"},
		{"::1", "80", "[::1]:80"},
	}
	for _, tt := range tests {
		cfg := &Config{Host: tt.host, Port: tt.port}
		if got := cfg.Address(); got != tt.want {
			t.Errorf("Address() = %q, want %q", got, tt.want)
		}
	}
}
