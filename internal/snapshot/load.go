package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/No1412lee/il2cpp-plus/pkg/compression"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// Format is the encoding of a snapshot document.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// String returns the format name.
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "yaml"
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatYAML, apperrors.Newf(apperrors.CodeInvalidInput, "unknown snapshot format %q", s)
	}
}

// FormatFromPath derives the document format and compression codec from a
// file name such as "heap.json.zst". Unknown extensions read as YAML.
func FormatFromPath(path string) (Format, compression.Type) {
	codec, base := compression.FromPath(path)
	if strings.EqualFold(filepath.Ext(base), ".json") {
		return FormatJSON, codec
	}
	return FormatYAML, codec
}

// Load decodes a document. Unknown keys are rejected.
func Load(r io.Reader, format Format) (*Document, error) {
	doc := &Document{}
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(doc); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeParseError, "decode json snapshot", err)
		}
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(doc); err != nil && err != io.EOF {
			return nil, apperrors.Wrap(apperrors.CodeParseError, "decode yaml snapshot", err)
		}
	}
	return doc, nil
}

// LoadFile reads a document from disk. The format and compression follow
// the file name; compressed content is also recognized by its magic bytes.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.CodeNotFound, "snapshot "+path, err)
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	format, _ := FormatFromPath(path)
	r, err := compression.AutoReader(f)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParseError, "decompress snapshot", err)
	}
	defer r.Close()
	return Load(r, format)
}

// Encode writes doc in the given format.
func Encode(w io.Writer, doc *Document, format Format) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// SaveFile writes doc to path, choosing format and compression from the
// file name.
func SaveFile(path string, doc *Document) (err error) {
	format, codec := FormatFromPath(path)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w, err := compression.NewWriter(f, codec, compression.LevelDefault)
	if err != nil {
		return err
	}
	if err := Encode(w, doc, format); err != nil {
		w.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return w.Close()
}
