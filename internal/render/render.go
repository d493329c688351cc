// Package render turns a single decoded field into its display string.
package render

import (
	"strconv"

	"github.com/agilira/go-errors"
	"golang.org/x/sys/cpu"

	"github.com/crimson-sun/leaf/internal/model"
)

// ErrCodeUnresolved is returned when the generic resolver cannot produce a
// display value for a field.
const ErrCodeUnresolved = "LEAF_FIELD_UNRESOLVED"

// Resolver is the export provider's generic, human-readable field resolver.
type Resolver interface {
	Resolve(f model.Field) (string, error)
}

// Renderer renders fields. With ResolveNames unset, addresses and ports take
// a fast path that never touches the resolver.
type Renderer struct {
	ResolveNames bool
	BigEndian    bool // host byte order
}

// New returns a Renderer for the host's byte order.
func New(resolveNames bool) Renderer {
	return Renderer{ResolveNames: resolveNames, BigEndian: cpu.IsBigEndian}
}

// Render returns the display string of f.
func (r Renderer) Render(f model.Field, res Resolver) (string, error) {
	if !r.ResolveNames {
		switch f.Type {
		case model.TypeIPAddr:
			return FormatIPv4(f.Value.U32, r.BigEndian), nil
		case model.TypeTCPPort, model.TypeUDPPort:
			return FormatPort(f.Value.U16, r.BigEndian), nil
		}
	}
	if res == nil {
		return "", errors.New(ErrCodeUnresolved, "no resolver available").
			WithContext("attr_id", f.AttrID)
	}
	s, err := res.Resolve(f)
	if err != nil {
		return "", errors.Wrap(err, ErrCodeUnresolved, "field could not be resolved").
			WithContext("attr_id", f.AttrID).
			WithContext("type", f.Type.String())
	}
	return s, nil
}

// FormatIPv4 renders a stored IPv4 value as dotted decimal in network
// transmission order. On a little-endian host the first octet on the wire is
// the low byte of v; on a big-endian host it is the high byte.
func FormatIPv4(v uint32, bigEndian bool) string {
	var o [4]byte
	if bigEndian {
		o = [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	} else {
		o = [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	}
	buf := make([]byte, 0, 15)
	for i, b := range o {
		if i > 0 {
			buf = append(buf, '.')
		}
		buf = strconv.AppendUint(buf, uint64(b), 10)
	}
	return string(buf)
}

// FormatPort renders a port stored in network byte order as a decimal
// host-order number.
func FormatPort(v uint16, bigEndian bool) string {
	if !bigEndian {
		v = v>>8 | v<<8
	}
	return strconv.FormatUint(uint64(v), 10)
}
