package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adamavenir/huddle/internal/core"
)

func TestConfigSetGetList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	output, err := executeCommand(NewRootCmd("test"), "config", "server-url", "https://chat.example.com", "--config", path)
	if err != nil {
		t.Fatalf("set: %v (%s)", err, output)
	}
	if !strings.Contains(output, "Set server_url = https://chat.example.com") {
		t.Fatalf("unexpected set output %q", output)
	}
	if _, err := executeCommand(NewRootCmd("test"), "config", "token", "s3cret", "--config", path); err != nil {
		t.Fatalf("set token: %v", err)
	}

	output, err = executeCommand(NewRootCmd("test"), "config", "server_url", "--config", path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(output) != "server_url: https://chat.example.com" {
		t.Fatalf("unexpected get output %q", output)
	}

	output, err = executeCommand(NewRootCmd("test"), "config", "--config", path, "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var entries []configEntry
	if err := json.Unmarshal([]byte(output), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	values := map[string]string{}
	for _, entry := range entries {
		values[entry.Key] = entry.Value
	}
	if values["token"] != "********" {
		t.Fatalf("expected masked token, got %q", values["token"])
	}
	if values["send_rate"] != "" {
		t.Fatalf("defaults should not be written, got send_rate %q", values["send_rate"])
	}

	cfg, err := core.ReadConfigFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if cfg.Token != "s3cret" || cfg.SendRate != 0 {
		t.Fatalf("unexpected saved config %+v", cfg)
	}
}

func TestConfigRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"bogus", "1"}, "unknown config key"},
		{[]string{"bogus"}, "unknown config key"},
		{[]string{"server_url", "not a url"}, "server_url: invalid url"},
		{[]string{"upload_url", "http://"}, "upload_url: invalid url"},
		{[]string{"page_size", "--", "-3"}, "page_size must be a non-negative integer"},
		{[]string{"send_rate", "fast"}, "send_rate must be a non-negative number"},
		{[]string{"notifications", "maybe"}, "notifications must be true or false"},
	}
	for _, tc := range tests {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			args := append([]string{"config", "--config", path}, tc.args...)
			output, err := executeCommand(NewRootCmd("test"), args...)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(output, "Error: "+tc.want) {
				t.Fatalf("expected %q, got %q", tc.want, output)
			}
		})
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("rejected values should not create the config file")
	}
}

func TestConfigUploadTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := executeCommand(NewRootCmd("test"), "config", "upload_tags", "chat, voice ,", "--config", path); err != nil {
		t.Fatalf("set: %v", err)
	}
	cfg, err := core.ReadConfigFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if strings.Join(cfg.UploadTags, "|") != "chat|voice" {
		t.Fatalf("unexpected tags %v", cfg.UploadTags)
	}
}
