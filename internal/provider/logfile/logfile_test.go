package logfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agilira/go-errors"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/crimson-sun/leaf/internal/model"
	"github.com/crimson-sun/leaf/internal/provider"
)

// recorder is a provider.Handler that remembers every event.
type recorder struct {
	mu      sync.Mutex
	events  []string
	records []model.Record
	perms   [][]int
	names   []string
	texts   []string
	recCh   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{recCh: make(chan struct{}, 64)}
}

func (r *recorder) add(ev string) provider.Status {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return provider.StatusOK
}

func (r *recorder) OnRecord(s provider.Session, rec model.Record, perms []int) provider.Status {
	r.mu.Lock()
	fields := append([]model.Field(nil), rec.Fields...)
	r.records = append(r.records, model.Record{Fields: fields})
	r.perms = append(r.perms, perms)
	var names, texts []string
	for _, f := range rec.Fields {
		names = append(names, s.AttrName(f.AttrID))
		text, err := s.Resolve(f)
		if err != nil {
			text = "!" + err.Error()
		}
		texts = append(texts, text)
	}
	r.names = append(r.names, strings.Join(names, ","))
	r.texts = append(r.texts, strings.Join(texts, ","))
	r.mu.Unlock()
	r.add("record")
	r.recCh <- struct{}{}
	return provider.StatusOK
}

func (r *recorder) OnDictionary(_ provider.Session, id int, vt model.ValueType) provider.Status {
	return r.add(fmt.Sprintf("dict:%d:%s", id, vt))
}
func (r *recorder) OnSessionStart(provider.Session) provider.Status       { return r.add("start") }
func (r *recorder) OnSessionEnd(provider.Session) provider.Status         { return r.add("end") }
func (r *recorder) OnSessionEstablished(provider.Session) provider.Status { return r.add("established") }
func (r *recorder) OnEOF(provider.Session) provider.Status                { return r.add("eof") }
func (r *recorder) OnSwitch(provider.Session) provider.Status             { return r.add("switch") }

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) waitRecords(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-r.recCh:
		case <-deadline:
			t.Fatalf("timed out waiting for record %d of %d", i+1, n)
		}
	}
}

const sampleLog = `{"dict":{"id":1,"name":"src","type":"ip"}}
{"dict":{"id":2,"name":"user","type":"string"}}
{"fields":[{"id":1,"type":"ip","value":"127.0.0.1"},{"id":2,"type":"string","value":"admin"}],"perms":[3]}
{"fields":[{"id":9,"type":"tcp_port","value":80}]}
`

// openSession builds an environment over values and returns a resumed
// session fed to rec.
func openSession(t *testing.T, values map[string]string, opts provider.SessionOptions, rec *recorder) *Env {
	t.Helper()
	env, err := newEnv(values, discardLogger())
	if err != nil {
		t.Fatalf("newEnv error: %v", err)
	}
	client, err := env.NewClient(rec)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	server, err := env.NewServer("lea_server")
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	s, err := env.NewSession(client, server, opts)
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunOfflineDeliversEventsInOrder(t *testing.T) {
	path := writeFile(t, "fw.log", []byte(sampleLog))
	rec := newRecorder()
	env := openSession(t, nil, provider.SessionOptions{Filename: path}, rec)

	if err := env.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	want := []string{"start", "established", "dict:1:ip", "dict:2:string", "record", "record", "eof", "end"}
	got := rec.snapshot()
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("events = %v, want %v", got, want)
	}

	if rec.names[0] != "src,user" || rec.names[1] != "attr9" {
		t.Errorf("names = %v", rec.names)
	}
	first := rec.records[0].Fields
	if model.AddrFromStored(first[0].Value.U32).String() != "127.0.0.1" {
		t.Errorf("ip not in stored form: %#x", first[0].Value.U32)
	}
	if first[1].Value.Str != "admin" {
		t.Errorf("string value = %q", first[1].Value.Str)
	}
	if port := model.PortFromStored(rec.records[1].Fields[0].Value.U16); port != 80 {
		t.Errorf("port = %d, want 80", port)
	}
	if len(rec.perms[0]) != 1 || rec.perms[0][0] != 3 {
		t.Errorf("perms = %v", rec.perms[0])
	}
}

func TestSessionResolvesOtherFields(t *testing.T) {
	path := writeFile(t, "fw.log", []byte(`{"fields":[{"id":1,"type":"ip","value":"127.0.0.1"},{"id":12,"type":"other","value":"admin"}]}
{"fields":[{"id":13,"type":"blob","value":"x1"},{"id":14,"value":42}]}
`))
	rec := newRecorder()
	env := openSession(t, nil, provider.SessionOptions{Filename: path}, rec)

	if err := env.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := []string{"127.0.0.1,admin", "x1,42"}
	if strings.Join(rec.texts, " ") != strings.Join(want, " ") {
		t.Errorf("resolved = %v, want %v", rec.texts, want)
	}
}

func TestRunSkipsMalformedLines(t *testing.T) {
	data := `not json
{"fields":[{"id":1,"type":"ip","value":"::1"}]}
[1,2,3]
{"other":true}
{"fields":[]}
`
	path := writeFile(t, "fw.log", []byte(data))
	rec := newRecorder()
	env := openSession(t, nil, provider.SessionOptions{Filename: path}, rec)

	if err := env.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(rec.records) != 1 || len(rec.records[0].Fields) != 0 {
		t.Errorf("records = %+v, want one empty record", rec.records)
	}
}

func TestRunOfflineReadsUnterminatedLastLine(t *testing.T) {
	data := `{"fields":[{"id":1,"type":"uint","value":7}]}`
	path := writeFile(t, "fw.log", []byte(data))
	rec := newRecorder()
	env := openSession(t, nil, provider.SessionOptions{Filename: path}, rec)

	if err := env.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(rec.records) != 1 || rec.records[0].Fields[0].Value.U32 != 7 {
		t.Errorf("records = %+v", rec.records)
	}
}

func TestRunFromEndSkipsExisting(t *testing.T) {
	path := writeFile(t, "fw.log", []byte(sampleLog))
	rec := newRecorder()
	env := openSession(t, nil, provider.SessionOptions{Filename: path, FromEnd: true}, rec)

	if err := env.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(rec.records) != 0 {
		t.Errorf("got %d records, want 0", len(rec.records))
	}
}

func TestRunSuspendedSessionFails(t *testing.T) {
	path := writeFile(t, "fw.log", []byte(sampleLog))
	env, _ := newEnv(nil, discardLogger())
	defer env.Close()
	client, _ := env.NewClient(newRecorder())
	server, _ := env.NewServer("lea_server")
	if _, err := env.NewSession(client, server, provider.SessionOptions{Filename: path}); err != nil {
		t.Fatalf("NewSession error: %v", err)
	}

	err := env.Run(context.Background())
	if err == nil {
		t.Fatal("expected error running a suspended session")
	}
	if coder, ok := err.(errors.ErrorCoder); !ok || string(coder.ErrorCode()) != ErrCodeState {
		t.Errorf("error %v, want code %s", err, ErrCodeState)
	}
}

func TestNewSessionRejectsForeignEntities(t *testing.T) {
	path := writeFile(t, "fw.log", []byte(sampleLog))
	a, _ := newEnv(nil, discardLogger())
	b, _ := newEnv(nil, discardLogger())
	client, _ := a.NewClient(newRecorder())
	server, _ := b.NewServer("lea_server")

	if _, err := a.NewSession(client, server, provider.SessionOptions{Filename: path}); err == nil {
		t.Error("expected error for server from another environment")
	}
}

func TestNewSessionMissingFile(t *testing.T) {
	env, _ := newEnv(nil, discardLogger())
	client, _ := env.NewClient(newRecorder())
	server, _ := env.NewServer("lea_server")

	_, err := env.NewSession(client, server, provider.SessionOptions{
		Filename: filepath.Join(t.TempDir(), "missing.log"),
	})
	if coder, ok := err.(errors.ErrorCoder); !ok || string(coder.ErrorCode()) != ErrCodeOpen {
		t.Errorf("error %v, want code %s", err, ErrCodeOpen)
	}
}

func TestRunCompressedAndCBOR(t *testing.T) {
	var zbuf bytes.Buffer
	zw, _ := zstd.NewWriter(&zbuf)
	zw.Write([]byte(sampleLog))
	zw.Close()

	var lbuf bytes.Buffer
	lw := lz4.NewWriter(&lbuf)
	lw.Write([]byte(sampleLog))
	lw.Close()

	var cbuf bytes.Buffer
	entries := []any{
		map[string]any{"dict": map[string]any{"id": 1, "name": "src", "type": "ip"}},
		map[string]any{"fields": []any{
			map[string]any{"id": 1, "type": "ip", "value": "127.0.0.1"},
			map[string]any{"id": 2, "type": "string", "value": "admin"},
		}},
		map[string]any{"fields": []any{map[string]any{"id": 9, "type": "tcp_port", "value": 80}}},
	}
	for _, e := range entries {
		b, err := cbor.Marshal(e)
		if err != nil {
			t.Fatal(err)
		}
		cbuf.Write(b)
	}

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"zstd", "fw.log.zst", zbuf.Bytes()},
		{"lz4", "fw.log.lz4", lbuf.Bytes()},
		{"cbor", "fw.cbor", cbuf.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.data)
			rec := newRecorder()
			env := openSession(t, nil, provider.SessionOptions{Filename: path}, rec)

			if err := env.Run(context.Background()); err != nil {
				t.Fatalf("Run error: %v", err)
			}
			if len(rec.records) != 2 {
				t.Fatalf("got %d records, want 2", len(rec.records))
			}
			if rec.names[0] != "src,attr2" && rec.names[0] != "src,user" {
				t.Errorf("names = %q", rec.names[0])
			}
			if model.PortFromStored(rec.records[1].Fields[0].Value.U16) != 80 {
				t.Errorf("port not converted: %+v", rec.records[1].Fields[0])
			}
		})
	}
}

func TestOnlineRequiresPlainNDJSON(t *testing.T) {
	path := writeFile(t, "fw.cbor", nil)
	env, _ := newEnv(nil, discardLogger())
	client, _ := env.NewClient(newRecorder())
	server, _ := env.NewServer("lea_server")

	_, err := env.NewSession(client, server, provider.SessionOptions{Filename: path, Online: true})
	if err == nil {
		t.Fatal("expected error following a CBOR file")
	}
}

func TestRunOnlineFollowsAppendsAndSwitches(t *testing.T) {
	path := writeFile(t, "fw.log", []byte(`{"fields":[{"id":1,"type":"uint","value":1}]}`+"\n"))
	rec := newRecorder()
	env := openSession(t, map[string]string{"poll_interval": "20ms"},
		provider.SessionOptions{Filename: path, Online: true}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.Run(ctx) }()

	rec.waitRecords(t, 1)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	// Written in two parts: the first half must be held back.
	f.Write([]byte(`{"fields":[{"id":1,"type":"uint",`))
	time.Sleep(60 * time.Millisecond)
	f.Write([]byte(`"value":2}]}` + "\n"))
	f.Close()
	rec.waitRecords(t, 1)

	// Truncate and rewrite shorter: the provider starts over.
	time.Sleep(60 * time.Millisecond)
	os.WriteFile(path, []byte(`{"fields":[]}`+"\n"), 0644)
	rec.waitRecords(t, 1)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.records) != 3 {
		t.Fatalf("got %d records, want 3", len(rec.records))
	}
	if rec.records[1].Fields[0].Value.U32 != 2 {
		t.Errorf("second record = %+v", rec.records[1])
	}
	events := strings.Join(rec.events, " ")
	if !strings.Contains(events, "switch") {
		t.Errorf("no switch event in %s", events)
	}
	if !strings.HasSuffix(events, "end") || strings.Contains(events, "eof") {
		t.Errorf("online events = %s", events)
	}
}

func TestRunCancelledOffline(t *testing.T) {
	path := writeFile(t, "fw.log", []byte(sampleLog))
	rec := newRecorder()
	env := openSession(t, nil, provider.SessionOptions{Filename: path}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := env.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	got := rec.snapshot()
	if got[len(got)-1] != "end" || len(rec.records) != 0 {
		t.Errorf("events = %v", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := writeFile(t, "fw.log", []byte(sampleLog))
	rec := newRecorder()
	env := openSession(t, nil, provider.SessionOptions{Filename: path}, rec)

	if err := env.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := env.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
	if err := env.Run(context.Background()); err == nil {
		t.Error("expected error running a closed session")
	}
}
