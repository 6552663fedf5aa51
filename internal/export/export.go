// Package export writes the graph document to JSON or YAML files for
// use outside the engine.
package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mindgraph/internal/errors"
	"mindgraph/internal/graph"
	"mindgraph/internal/paths"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a user-supplied format name (or an output file
// extension) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", errors.Newf(errors.InputRejected, "unsupported export format %q (want json or yaml)", s)
}

// Export writes the store's document to outPath. The destination must
// stay inside root (or the system temp directory); everything else is
// rejected before any file is touched.
func Export(store *graph.Store, root, outPath string, format Format) error {
	abs, err := filepath.Abs(outPath)
	if err != nil {
		return errors.Wrap(errors.InputRejected, "resolving export path", err)
	}
	if !paths.IsWithinRoot(abs, root) && !paths.IsWithinRoot(abs, os.TempDir()) {
		return errors.Newf(errors.StorePathEscape, "export path %s is outside the project root", abs)
	}

	doc := store.Document()
	data, err := encode(doc, format)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrap(errors.InternalError, "creating export directory", err)
	}
	tmp := abs + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(errors.InternalError, "writing export file", err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		return errors.Wrap(errors.InternalError, "replacing export file", err)
	}
	return nil
}

// encode renders the document. YAML goes through the JSON field names
// so both formats expose identical keys.
func encode(doc *graph.Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, errors.Wrap(errors.InternalError, "encoding export document", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		jsonData, err := json.Marshal(doc)
		if err != nil {
			return nil, errors.Wrap(errors.InternalError, "encoding export document", err)
		}
		var generic interface{}
		if err := json.Unmarshal(jsonData, &generic); err != nil {
			return nil, errors.Wrap(errors.InternalError, "reshaping export document", err)
		}
		return yaml.Marshal(generic)
	}
	return nil, errors.Newf(errors.InputRejected, "unsupported export format %q", format)
}
