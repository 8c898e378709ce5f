package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/logstream"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "clawdesk dev") {
		t.Errorf("output = %q", out)
	}
}

func TestProfileAddAndList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if _, err := execute(t, "--dir", dir, "profile", "add", "staging", "--port", "19001", "--activate"); err != nil {
		t.Fatalf("profile add: %v", err)
	}
	out, err := execute(t, "--dir", dir, "profile", "list")
	if err != nil {
		t.Fatalf("profile list: %v", err)
	}
	if !strings.Contains(out, "staging") || !strings.Contains(out, "19001") || !strings.Contains(out, "local") {
		t.Errorf("list output = %q", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "staging") && !strings.HasPrefix(line, "*") {
			t.Errorf("staging not marked active: %q", line)
		}
	}

	if _, err := execute(t, "--dir", dir, "profile", "add", "bad name", "--port", "19002"); err == nil {
		t.Error("expected validation error for an invalid name")
	}
	if _, err := execute(t, "--dir", dir, "profile", "add", "low", "--port", "80"); err == nil {
		t.Error("expected validation error for a privileged port")
	}
}

func TestConfigCheck(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "--dir", t.TempDir(), "config", "check")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Configuration OK") || !strings.Contains(out, "active profile: local") {
		t.Errorf("output = %q", out)
	}
}

func TestWriteConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default(t.TempDir())
	local := cfg.Profiles[config.DefaultProfile]
	local.Auth.Token = "inline-gateway-token"
	cfg.Profiles[config.DefaultProfile] = local

	tests := []struct {
		format string
		decode func([]byte, any) error
	}{
		{"json", json.Unmarshal},
		{"yaml", yaml.Unmarshal},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := writeConfig(&buf, cfg, tt.format); err != nil {
				t.Fatal(err)
			}
			if strings.Contains(buf.String(), "inline-gateway-token") {
				t.Fatalf("token leaked: %s", buf.String())
			}
			var doc map[string]any
			if err := tt.decode(buf.Bytes(), &doc); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if _, ok := doc["profiles"]; !ok {
				t.Errorf("missing profiles key: %v", doc)
			}
		})
	}

	if err := writeConfig(&bytes.Buffer{}, cfg, "toml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestPrintMessage(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	handle := printMessage(&out, &errOut)

	handle(logstream.Message{Name: logstream.EventLogs, Data: json.RawMessage(`{"lines":["one","two"]}`)})
	handle(logstream.Message{Name: logstream.EventHeartbeat, Data: json.RawMessage(`{}`)})
	handle(logstream.Message{Name: logstream.EventError, Data: json.RawMessage(`{"message":"gateway down"}`)})

	if out.String() != "one\ntwo\n" {
		t.Errorf("out = %q", out.String())
	}
	if errOut.String() != "gateway: gateway down\n" {
		t.Errorf("errOut = %q", errOut.String())
	}
}
