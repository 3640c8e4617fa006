// Package writer writes JSON documents, optionally compressed, to streams
// and files.
package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/No1412lee/il2cpp-plus/pkg/compression"
)

// Writer encodes values of type T.
type Writer[T any] interface {
	Write(data T, w io.Writer) error
	WriteToFile(data T, path string) error
}

// JSONWriter writes data as JSON.
type JSONWriter[T any] struct {
	// Indent specifies the indentation for pretty printing.
	// Empty string means compact output.
	Indent string
}

// NewJSONWriter creates a new JSON writer with compact output.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{}
}

// NewPrettyJSONWriter creates a JSON writer with pretty printing.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  "}
}

// Write writes the data as JSON to the writer.
func (w *JSONWriter[T]) Write(data T, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	if w.Indent != "" {
		encoder.SetIndent("", w.Indent)
	}
	return encoder.Encode(data)
}

// WriteToFile writes the data as JSON to a file.
func (w *JSONWriter[T]) WriteToFile(data T, path string) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(data, f) })
}

// CompressedWriter writes data as compressed JSON.
type CompressedWriter[T any] struct {
	Codec compression.Type
	Level compression.Level
}

// NewCompressedWriter creates a compressed JSON writer using codec.
func NewCompressedWriter[T any](codec compression.Type) *CompressedWriter[T] {
	return &CompressedWriter[T]{Codec: codec, Level: compression.LevelDefault}
}

// Write writes the data as compressed JSON to the writer.
func (w *CompressedWriter[T]) Write(data T, writer io.Writer) error {
	cw, err := compression.NewWriter(writer, w.Codec, w.Level)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(cw).Encode(data); err != nil {
		cw.Close()
		return fmt.Errorf("failed to encode data: %w", err)
	}
	return cw.Close()
}

// WriteToFile writes the data as compressed JSON to a file.
func (w *CompressedWriter[T]) WriteToFile(data T, path string) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(data, f) })
}

// WriteResult contains statistics about the written file.
type WriteResult struct {
	JSONSize       int64   `json:"json_size"`
	CompressedSize int64   `json:"compressed_size"`
	CompressionPct float64 `json:"compression_pct"`
}

// WriteToFileWithStats writes data to path and reports how well it compressed.
func (w *CompressedWriter[T]) WriteToFileWithStats(data T, path string) (*WriteResult, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	comp, err := compression.New(w.Codec, w.Level)
	if err != nil {
		return nil, err
	}
	defer compression.Close(comp)

	out, err := comp.Compress(jsonData)
	if err != nil {
		return nil, fmt.Errorf("failed to compress data: %w", err)
	}
	if err := writeFile(path, func(f io.Writer) error {
		_, err := f.Write(out)
		return err
	}); err != nil {
		return nil, err
	}

	res := &WriteResult{JSONSize: int64(len(jsonData)), CompressedSize: int64(len(out))}
	if res.JSONSize > 0 {
		res.CompressionPct = float64(res.CompressedSize) / float64(res.JSONSize) * 100
	}
	return res, nil
}

// ForPath returns a writer matching the extension of path: compressed for
// ".gz" and ".zst", pretty JSON otherwise.
func ForPath[T any](path string) Writer[T] {
	codec, _ := compression.FromPath(path)
	if codec == compression.TypeNone {
		return NewPrettyJSONWriter[T]()
	}
	return NewCompressedWriter[T](codec)
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()
	return fn(file)
}
