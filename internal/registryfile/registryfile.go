// Package registryfile reads the YAML/JSON registry files that declare
// targets and publishers.
package registryfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads path and decodes it into out, picking the decoder from the file
// extension. what names the registry in error messages.
func Load(path, what string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%s file path is empty", what)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s file: %w", what, err)
	}
	return Decode(data, filepath.Ext(path), what, out)
}

// Decode decodes data into out. Unknown keys are rejected. An empty ext is
// decoded as YAML, which also accepts JSON documents.
func Decode(data []byte, ext, what string, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%s file is empty", what)
	}

	var err error
	switch strings.ToLower(strings.TrimSpace(ext)) {
	case "", ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(out)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(out)
	default:
		return fmt.Errorf("%s file format %q not recognized (expected YAML or JSON)", what, ext)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}
