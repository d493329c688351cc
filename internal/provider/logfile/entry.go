package logfile

import (
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"time"

	"github.com/agilira/go-errors"

	"github.com/crimson-sun/leaf/internal/model"
)

// entry is one decoded line of a record file: a dictionary update, a
// record, or both.
type entry struct {
	dict      *dictEntry
	hasRecord bool
	fields    []model.Field
	perms     []int
}

type dictEntry struct {
	id   int
	name string
	vt   model.ValueType
}

// rawEntry is the shape shared by both file encodings once decoded.
type rawEntry struct {
	Dict   *rawDict
	Fields []rawField
	Perms  []int
}

type rawDict struct {
	ID   int    `cbor:"id"`
	Name string `cbor:"name"`
	Type string `cbor:"type"`
}

type rawField struct {
	ID    int    `cbor:"id"`
	Type  string `cbor:"type"`
	Value any    `cbor:"value"`
}

func malformed(msg string, kv ...any) error {
	e := errors.New(ErrCodeMalformed, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.WithContext(fmt.Sprint(kv[i]), kv[i+1])
	}
	return e
}

// toEntry validates a decoded entry and converts its fields to stored form.
func (r *rawEntry) toEntry(hasRecord bool) (entry, error) {
	if r.Dict == nil && !hasRecord {
		return entry{}, malformed("entry has neither dict nor fields")
	}
	var e entry
	if r.Dict != nil {
		vt, _ := model.ParseValueType(r.Dict.Type)
		e.dict = &dictEntry{id: r.Dict.ID, name: r.Dict.Name, vt: vt}
	}
	if hasRecord {
		e.hasRecord = true
		e.perms = r.Perms
		e.fields = make([]model.Field, 0, len(r.Fields))
		for i, rf := range r.Fields {
			f, err := rf.toField()
			if err != nil {
				return entry{}, errors.Wrap(err, ErrCodeMalformed, "bad field").
					WithContext("index", i).
					WithContext("attr_id", rf.ID)
			}
			e.fields = append(e.fields, f)
		}
	}
	return e, nil
}

// toField converts a field value to the form an export library hands out:
// addresses and ports in network byte order, everything else host order.
func (rf rawField) toField() (model.Field, error) {
	vt, ok := model.ParseValueType(rf.Type)
	if !ok && rf.Type != "" {
		vt = model.TypeOther
	}
	f := model.Field{AttrID: rf.ID, Type: vt}

	switch vt {
	case model.TypeIPAddr:
		if s, ok := rf.Value.(string); ok {
			addr, err := netip.ParseAddr(s)
			if err != nil || !addr.Is4() {
				return f, fmt.Errorf("not an IPv4 address: %q", s)
			}
			f.Value.U32 = model.StoredIPv4(addr)
			return f, nil
		}
		n, err := number(rf.Value, 0, math.MaxUint32)
		if err != nil {
			return f, err
		}
		f.Value.U32 = uint32(n)
	case model.TypeTCPPort, model.TypeUDPPort:
		n, err := number(rf.Value, 0, math.MaxUint16)
		if err != nil {
			return f, err
		}
		f.Value.U16 = model.StoredPort(uint16(n))
	case model.TypeUshort:
		n, err := number(rf.Value, 0, math.MaxUint16)
		if err != nil {
			return f, err
		}
		f.Value.U16 = uint16(n)
	case model.TypeUint32:
		n, err := number(rf.Value, 0, math.MaxUint32)
		if err != nil {
			return f, err
		}
		f.Value.U32 = uint32(n)
	case model.TypeInt32:
		n, err := number(rf.Value, math.MinInt32, math.MaxInt32)
		if err != nil {
			return f, err
		}
		f.Value.U32 = uint32(int32(n))
	case model.TypeTime:
		if s, ok := rf.Value.(string); ok {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return f, err
			}
			f.Value.U32 = uint32(t.Unix())
			return f, nil
		}
		n, err := number(rf.Value, 0, math.MaxUint32)
		if err != nil {
			return f, err
		}
		f.Value.U32 = uint32(n)
	default:
		switch v := rf.Value.(type) {
		case string:
			f.Value.Str = v
		case nil:
		default:
			f.Value.Str = fmt.Sprint(v)
		}
	}
	return f, nil
}

// number accepts the integer representations both decoders produce, plus
// decimal strings.
func number(v any, lo, hi int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("value %d out of range", x)
		}
		n = int64(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("value %v is not an integer", x)
		}
		n = int64(x)
	case string:
		parsed, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	default:
		return 0, fmt.Errorf("value %v (%T) is not a number", v, v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func modelRecord(e entry) model.Record {
	return model.Record{Fields: e.fields}
}
