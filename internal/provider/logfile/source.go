package logfile

import (
	"bufio"
	"bytes"
	goerrors "errors"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/valyala/fastjson"
)

var cborDecMode cbor.DecMode

func init() {
	var err error
	cborDecMode, err = cbor.DecOptions{
		// Field values are decoded into any; nested maps, if present,
		// should look like their JSON counterparts.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("logfile: CBOR decoder initialization failed: " + err.Error())
	}
}

// decoder yields entries until io.EOF. Errors carrying ErrCodeMalformed
// affect one entry only.
type decoder interface {
	next() (entry, error)
}

// source is an open record file.
type source struct {
	path   string
	file   *os.File
	closer func()
	dec    decoder
	ndjson *ndjsonDecoder // nil unless the file is plain NDJSON
}

type fileKind struct {
	cbor        bool
	compression string // "", "zstd" or "lz4"
}

func kindOf(path string) fileKind {
	var k fileKind
	switch {
	case strings.HasSuffix(path, ".zst"):
		k.compression = "zstd"
		path = strings.TrimSuffix(path, ".zst")
	case strings.HasSuffix(path, ".lz4"):
		k.compression = "lz4"
		path = strings.TrimSuffix(path, ".lz4")
	}
	k.cbor = strings.HasSuffix(path, ".cbor")
	return k
}

// openSource opens path for reading. With follow set the file must be
// plain NDJSON; with fromEnd set the existing contents are skipped.
func openSource(path string, follow, fromEnd bool) (*source, error) {
	kind := kindOf(path)
	if follow && (kind.cbor || kind.compression != "") {
		return nil, errors.New(ErrCodeOpen, "online mode requires an uncompressed NDJSON file").
			WithContext("path", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeOpen, "cannot open log file").
			WithContext("path", path)
	}
	src := &source{path: path, file: f, closer: func() {}}

	var r io.Reader = f
	switch kind.compression {
	case "zstd":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, ErrCodeOpen, "cannot start zstd decoder").
				WithContext("path", path)
		}
		src.closer = zr.Close
		r = zr
	case "lz4":
		r = lz4.NewReader(f)
	}

	if kind.cbor {
		src.dec = &cborDecoder{dec: cborDecMode.NewDecoder(r)}
	} else {
		src.ndjson = &ndjsonDecoder{r: bufio.NewReader(r), follow: follow}
		src.dec = src.ndjson
	}

	if fromEnd {
		if err := src.skipToEnd(); err != nil {
			src.close()
			return nil, err
		}
	}
	return src, nil
}

func (s *source) skipToEnd() error {
	if s.ndjson != nil && kindOf(s.path).compression == "" {
		off, err := s.file.Seek(0, io.SeekEnd)
		if err != nil {
			return errors.Wrap(err, ErrCodeOpen, "cannot seek to end of log file").
				WithContext("path", s.path)
		}
		s.ndjson.offset = off
		return nil
	}
	// Compressed or CBOR: decode and discard.
	for {
		_, err := s.dec.next()
		if err == io.EOF {
			return nil
		}
		if err != nil && !isMalformed(err) {
			return err
		}
	}
}

// offset is the number of file bytes consumed as complete lines. Only
// meaningful for plain NDJSON.
func (s *source) offset() int64 {
	if s.ndjson == nil {
		return 0
	}
	return s.ndjson.offset
}

// replaced reports whether the file at s.path is no longer the file being
// read, or has been truncated below what was already consumed.
func (s *source) replaced() bool {
	onDisk, err := os.Stat(s.path)
	if err != nil {
		return false // mid-rotation; check again on the next change
	}
	open, err := s.file.Stat()
	if err != nil {
		return true
	}
	return !os.SameFile(onDisk, open) || onDisk.Size() < s.offset()
}

func (s *source) close() error {
	s.closer()
	return s.file.Close()
}

// ndjsonDecoder reads one JSON object per line. A trailing line without a
// newline is held back while following, since the writer may not be done
// with it.
type ndjsonDecoder struct {
	r       *bufio.Reader
	parser  fastjson.Parser
	pending []byte
	offset  int64
	follow  bool
}

func (d *ndjsonDecoder) next() (entry, error) {
	for {
		chunk, err := d.r.ReadBytes('\n')
		d.pending = append(d.pending, chunk...)
		if err == io.EOF {
			if d.follow || len(d.pending) == 0 {
				return entry{}, io.EOF
			}
		} else if err != nil {
			return entry{}, errors.Wrap(err, ErrCodeRead, "cannot read log file")
		}

		d.offset += int64(len(d.pending))
		line := bytes.TrimSpace(d.pending)
		if len(line) == 0 {
			d.pending = d.pending[:0]
			if err == io.EOF {
				return entry{}, io.EOF
			}
			continue
		}
		e, perr := d.parse(line)
		d.pending = d.pending[:0]
		return e, perr
	}
}

func (d *ndjsonDecoder) parse(line []byte) (entry, error) {
	v, err := d.parser.ParseBytes(line)
	if err != nil {
		return entry{}, errors.Wrap(err, ErrCodeMalformed, "invalid JSON line")
	}
	if v.Type() != fastjson.TypeObject {
		return entry{}, malformed("line is not a JSON object")
	}

	var raw rawEntry
	if dv := v.Get("dict"); dv != nil {
		raw.Dict = &rawDict{
			ID:   dv.GetInt("id"),
			Name: string(dv.GetStringBytes("name")),
			Type: string(dv.GetStringBytes("type")),
		}
	}
	hasRecord := v.Exists("fields")
	for _, fv := range v.GetArray("fields") {
		raw.Fields = append(raw.Fields, rawField{
			ID:    fv.GetInt("id"),
			Type:  string(fv.GetStringBytes("type")),
			Value: jsonValue(fv.Get("value")),
		})
	}
	for _, pv := range v.GetArray("perms") {
		raw.Perms = append(raw.Perms, pv.GetInt())
	}
	return raw.toEntry(hasRecord)
}

// jsonValue converts a JSON scalar to the types the CBOR decoder produces.
func jsonValue(v *fastjson.Value) any {
	if v == nil {
		return nil
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := v.Uint64(); err == nil {
			return n
		}
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNull:
		return nil
	}
	return v.String()
}

// cborDecoder reads a CBOR sequence of entry maps.
type cborDecoder struct {
	dec *cbor.Decoder
}

type cborEntry struct {
	Dict   *rawDict    `cbor:"dict"`
	Fields *[]rawField `cbor:"fields"`
	Perms  []int       `cbor:"perms"`
}

func (d *cborDecoder) next() (entry, error) {
	var ce cborEntry
	if err := d.dec.Decode(&ce); err != nil {
		if err == io.EOF {
			return entry{}, io.EOF
		}
		// A type mismatch consumes the whole item, so the stream stays
		// in sync. Anything else does not.
		var typeErr *cbor.UnmarshalTypeError
		if goerrors.As(err, &typeErr) {
			return entry{}, errors.Wrap(err, ErrCodeMalformed, "invalid CBOR entry")
		}
		return entry{}, errors.Wrap(err, ErrCodeRead, "cannot decode CBOR log file")
	}
	raw := rawEntry{Dict: ce.Dict, Perms: ce.Perms}
	if ce.Fields != nil {
		raw.Fields = *ce.Fields
	}
	return raw.toEntry(ce.Fields != nil)
}
