package logfile

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/agilira/argus"
	"github.com/agilira/go-errors"
)

// structured lists the extensions handed to argus. Everything else,
// lea.conf included, is read as "name value" lines.
var structured = map[string]bool{
	".json":       true,
	".yaml":       true,
	".yml":        true,
	".toml":       true,
	".hcl":        true,
	".ini":        true,
	".properties": true,
}

// parseConfig turns a configuration file into flat name/value pairs.
// Lines are "name value", split on the first run of blanks, with # starting
// a comment.
func parseConfig(path string, data []byte) (map[string]string, error) {
	if !structured[strings.ToLower(filepath.Ext(path))] {
		return parseLines(data)
	}
	format := argus.DetectFormat(path)
	if format == argus.FormatUnknown {
		return nil, errors.New(ErrCodeConfig, "unrecognized configuration format").
			WithContext("path", path)
	}

	parsed, err := argus.ParseConfig(data, format)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeConfig, "cannot parse provider configuration").
			WithContext("path", path).
			WithContext("format", format.String())
	}
	values := make(map[string]string, len(parsed))
	flatten("", parsed, values)
	return values, nil
}

func parseLines(data []byte) (map[string]string, error) {
	values := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value := line, ""
		if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
			name, value = line[:i], strings.TrimSpace(line[i:])
		}
		if value == "" {
			return nil, errors.New(ErrCodeConfig, "configuration line has no value").
				WithContext("line", n).
				WithContext("name", name)
		}
		values[name] = strings.Trim(value, `"`)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, ErrCodeConfig, "cannot scan provider configuration")
	}
	return values, nil
}

// flatten stores nested sections as "section.name".
func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case string:
			out[key] = val
		case float64:
			out[key] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
