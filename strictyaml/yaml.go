// Package strictyaml decodes YAML configuration strictly: unknown keys, empty
// input and trailing documents are all errors.
package strictyaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Unmarshal decodes exactly one YAML document from b into yamlObj. Any config
// keys from the document which do not correspond to expected keys in the
// config struct will result in errors.
func Unmarshal(b []byte, yamlObj interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(b))
	decoder.KnownFields(true)

	err := decoder.Decode(yamlObj)
	if errors.Is(err, io.EOF) {
		return errors.New("yaml: empty document")
	}
	if err != nil {
		return err
	}

	var extra yaml.Node
	err = decoder.Decode(&extra)
	if !errors.Is(err, io.EOF) {
		return fmt.Errorf("yaml: expected a single document, found more")
	}
	return nil
}
