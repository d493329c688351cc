package logfile

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/crimson-sun/leaf/internal/provider"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLinesFormat(t *testing.T) {
	data := []byte(`# collector
log_filename fw.log
online_mode false
dst_server_addr 10.1.1.1

dst_server_port "514"
`)
	values, err := parseConfig("lea.conf", data)
	if err != nil {
		t.Fatalf("parseConfig error: %v", err)
	}
	want := map[string]string{
		"log_filename":    "fw.log",
		"online_mode":     "false",
		"dst_server_addr": "10.1.1.1",
		"dst_server_port": "514",
	}
	if len(values) != len(want) {
		t.Errorf("got %d values, want %d: %v", len(values), len(want), values)
	}
	for k, v := range want {
		if values[k] != v {
			t.Errorf("%s = %q, want %q", k, values[k], v)
		}
	}
}

func TestParseLinesSeparators(t *testing.T) {
	tests := []struct {
		name string
		path string
		line string
	}{
		{"tab", "lea.conf", "log_filename\tfw.log\n"},
		{"spaces and tab", "lea.conf", "log_filename  \t fw.log\n"},
		{"no extension", "lea", "log_filename fw.log\n"},
		{"unknown extension", "lea.cfg", "log_filename fw.log\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := parseConfig(tt.path, []byte(tt.line))
			if err != nil {
				t.Fatalf("parseConfig error: %v", err)
			}
			if values["log_filename"] != "fw.log" {
				t.Errorf("log_filename = %q, want fw.log", values["log_filename"])
			}
		})
	}
}

func TestParseLinesMissingValue(t *testing.T) {
	if _, err := parseConfig("lea.conf", []byte("log_filename\n")); err == nil {
		t.Error("expected error for line without value")
	}
}

func TestParseJSONConfig(t *testing.T) {
	data := []byte(`{"log_filename":"fw.log","online_mode":true,"dst_server_port":514,"mirror":{"size":1000000}}`)
	values, err := parseConfig("lea.json", data)
	if err != nil {
		t.Fatalf("parseConfig error: %v", err)
	}
	tests := map[string]string{
		"log_filename":    "fw.log",
		"online_mode":     "true",
		"dst_server_port": "514",
		"mirror.size":     "1000000",
	}
	for k, want := range tests {
		if values[k] != want {
			t.Errorf("%s = %q, want %q", k, values[k], want)
		}
	}
}

func TestInitThroughRegistry(t *testing.T) {
	dir := t.TempDir()
	dict := filepath.Join(dir, "dict.yaml")
	os.WriteFile(dict, []byte("attributes:\n  7: src\n  8: dst\n"), 0644)
	conf := filepath.Join(dir, "lea.conf")
	os.WriteFile(conf, []byte("log_filename fw.log\nattr_dictionary "+dict+"\npoll_interval 250ms\n"), 0644)

	ctor, err := provider.Get(Name)
	if err != nil {
		t.Fatalf("provider not registered: %v", err)
	}
	env, err := ctor().Init(conf)
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	defer env.Close()

	if v, ok := env.Get("log_filename"); !ok || v != "fw.log" {
		t.Errorf("Get(log_filename) = %q, %v", v, ok)
	}
	if _, ok := env.Get("dst_server_port"); ok {
		t.Error("Get reported an absent option as present")
	}
	e := env.(*Env)
	if e.dict[7] != "src" || e.dict[8] != "dst" {
		t.Errorf("dictionary = %v", e.dict)
	}
	if e.poll.String() != "250ms" {
		t.Errorf("poll = %v", e.poll)
	}
}

func TestInitBadPollInterval(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "lea.conf")
	os.WriteFile(conf, []byte("poll_interval soon\n"), 0644)
	if _, err := New(WithLogger(discardLogger())).Init(conf); err == nil {
		t.Error("expected error for bad poll_interval")
	}
}

func TestInitMissingFile(t *testing.T) {
	if _, err := New().Init(filepath.Join(t.TempDir(), "absent.conf")); err == nil {
		t.Error("expected error for missing configuration file")
	}
}
