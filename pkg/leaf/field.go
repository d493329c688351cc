package leaf

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/agilira/go-errors"

	"github.com/crimson-sun/leaf/internal/model"
	"github.com/crimson-sun/leaf/internal/resolve"
)

// ErrCodeInvalidField is returned when a Field's Value does not fit its Type.
const ErrCodeInvalidField = "LEAF_FIELD_INVALID"

// ValueType selects how a field value is rendered.
type ValueType int

const (
	Other ValueType = iota
	IPAddr
	TCPPort
	UDPPort
	String
	Uint32
	Int32
	Ushort
	Time
)

var modelTypes = [...]model.ValueType{
	Other:   model.TypeOther,
	IPAddr:  model.TypeIPAddr,
	TCPPort: model.TypeTCPPort,
	UDPPort: model.TypeUDPPort,
	String:  model.TypeString,
	Uint32:  model.TypeUint32,
	Int32:   model.TypeInt32,
	Ushort:  model.TypeUshort,
	Time:    model.TypeTime,
}

func (t ValueType) String() string {
	if t < 0 || int(t) >= len(modelTypes) {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return modelTypes[t].String()
}

// Field is one name=value pair of a record.
//
// Accepted values per type:
//   - IPAddr: netip.Addr or a dotted IPv4 string
//   - TCPPort, UDPPort, Ushort: uint16 or int
//   - String: string
//   - Uint32: uint32, uint or int
//   - Int32: int32 or int
//   - Time: time.Time or int64 Unix seconds, within the 32-bit unsigned range
//   - Other: any value; strings pass through, anything else prints with fmt
type Field struct {
	Name  string
	Type  ValueType
	Value any
}

// fieldLookup names fields by position and renders with a resolver.
type fieldLookup struct {
	names []string
	*resolve.Resolver
}

func (l fieldLookup) AttrName(id int) string { return l.names[id] }

// toRecord converts fields into the stored form the encoder works on,
// using each field's index as its attribute id.
func toRecord(fields []Field) (model.Record, []string, error) {
	rec := model.Record{Fields: make([]model.Field, len(fields))}
	names := make([]string, len(fields))
	for i, f := range fields {
		mf, err := f.toModel(i)
		if err != nil {
			return model.Record{}, nil, errors.Wrap(err, ErrCodeInvalidField, "invalid field value").
				WithContext("field", f.Name).
				WithContext("type", f.Type.String())
		}
		rec.Fields[i] = mf
		names[i] = f.Name
	}
	return rec, names, nil
}

func (f Field) toModel(id int) (model.Field, error) {
	if f.Type < 0 || int(f.Type) >= len(modelTypes) {
		return model.Field{}, fmt.Errorf("unknown value type %d", int(f.Type))
	}
	mf := model.Field{AttrID: id, Type: modelTypes[f.Type]}

	switch f.Type {
	case IPAddr:
		addr, err := toAddr(f.Value)
		if err != nil {
			return mf, err
		}
		mf.Value.U32 = model.StoredIPv4(addr)
	case TCPPort, UDPPort:
		p, err := toUint16(f.Value)
		if err != nil {
			return mf, err
		}
		mf.Value.U16 = model.StoredPort(p)
	case Ushort:
		p, err := toUint16(f.Value)
		if err != nil {
			return mf, err
		}
		mf.Value.U16 = p
	case String:
		s, ok := f.Value.(string)
		if !ok {
			return mf, fmt.Errorf("want string, got %T", f.Value)
		}
		mf.Value.Str = s
	case Uint32:
		switch v := f.Value.(type) {
		case uint32:
			mf.Value.U32 = v
		case uint:
			if uint64(v) > 1<<32-1 {
				return mf, fmt.Errorf("value %d out of range", v)
			}
			mf.Value.U32 = uint32(v)
		case int:
			if v < 0 || int64(v) > 1<<32-1 {
				return mf, fmt.Errorf("value %d out of range", v)
			}
			mf.Value.U32 = uint32(v)
		default:
			return mf, fmt.Errorf("want uint32, got %T", f.Value)
		}
	case Int32:
		switch v := f.Value.(type) {
		case int32:
			mf.Value.U32 = uint32(v)
		case int:
			if int64(v) < -1<<31 || int64(v) > 1<<31-1 {
				return mf, fmt.Errorf("value %d out of range", v)
			}
			mf.Value.U32 = uint32(int32(v))
		default:
			return mf, fmt.Errorf("want int32, got %T", f.Value)
		}
	case Time:
		var sec int64
		switch v := f.Value.(type) {
		case time.Time:
			sec = v.Unix()
		case int64:
			sec = v
		default:
			return mf, fmt.Errorf("want time.Time, got %T", f.Value)
		}
		if sec < 0 || sec > 1<<32-1 {
			return mf, fmt.Errorf("time %d out of range", sec)
		}
		mf.Value.U32 = uint32(sec)
	case Other:
		switch v := f.Value.(type) {
		case string:
			mf.Value.Str = v
		case nil:
		default:
			mf.Value.Str = fmt.Sprint(v)
		}
	}
	return mf, nil
}

func toAddr(v any) (netip.Addr, error) {
	var addr netip.Addr
	switch x := v.(type) {
	case netip.Addr:
		addr = x
	case string:
		a, err := netip.ParseAddr(x)
		if err != nil {
			return netip.Addr{}, err
		}
		addr = a
	default:
		return netip.Addr{}, fmt.Errorf("want netip.Addr or string, got %T", v)
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address", addr)
	}
	return addr, nil
}

func toUint16(v any) (uint16, error) {
	switch x := v.(type) {
	case uint16:
		return x, nil
	case int:
		if x < 0 || x > 65535 {
			return 0, fmt.Errorf("value %d out of range", x)
		}
		return uint16(x), nil
	}
	return 0, fmt.Errorf("want uint16, got %T", v)
}
