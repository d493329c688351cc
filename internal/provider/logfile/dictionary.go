package logfile

import (
	"os"

	"github.com/agilira/go-errors"
	"gopkg.in/yaml.v3"
)

// dictionaryFile is the attr_dictionary YAML document:
//
//	attributes:
//	  7: src
//	  8: dst
type dictionaryFile struct {
	Attributes map[int]string `yaml:"attributes"`
}

func loadDictionary(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeConfig, "cannot read attribute dictionary").
			WithContext("path", path)
	}
	var df dictionaryFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, errors.Wrap(err, ErrCodeConfig, "cannot parse attribute dictionary").
			WithContext("path", path)
	}
	if df.Attributes == nil {
		df.Attributes = make(map[int]string)
	}
	return df.Attributes, nil
}
