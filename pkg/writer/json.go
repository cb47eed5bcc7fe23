// Package writer persists run reports as JSON, optionally compressed with
// gzip or zstd.
package writer

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// JSONWriter writes values of T as JSON.
type JSONWriter[T any] struct {
	// Indent enables pretty printing. Empty means compact output.
	Indent string
	// Gzip compresses the output at CompressionLevel.
	Gzip             bool
	CompressionLevel int
	// Zstd compresses the output with zstd at ZstdLevel. Ignored when Gzip
	// is set.
	Zstd      bool
	ZstdLevel zstd.EncoderLevel
}

// NewJSONWriter creates a writer with compact output.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{CompressionLevel: gzip.DefaultCompression, ZstdLevel: zstd.SpeedDefault}
}

// NewPrettyJSONWriter creates a writer with pretty printing.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  ", CompressionLevel: gzip.DefaultCompression, ZstdLevel: zstd.SpeedDefault}
}

// ForPath returns a pretty writer that gzips when path ends in .gz and uses
// zstd when it ends in .zst.
func ForPath[T any](path string) *JSONWriter[T] {
	w := NewPrettyJSONWriter[T]()
	w.Gzip = strings.HasSuffix(path, ".gz")
	w.Zstd = strings.HasSuffix(path, ".zst")
	return w
}

// Write encodes data to out.
func (w *JSONWriter[T]) Write(data T, out io.Writer) error {
	if w.Zstd && !w.Gzip {
		return w.writeZstd(data, out)
	}
	if !w.Gzip {
		return w.encode(data, out)
	}

	gz, err := gzip.NewWriterLevel(out, w.CompressionLevel)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if err := w.encode(data, gz); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

func (w *JSONWriter[T]) writeZstd(data T, out io.Writer) error {
	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(w.ZstdLevel))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := w.encode(data, enc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func (w *JSONWriter[T]) encode(data T, out io.Writer) error {
	encoder := json.NewEncoder(out)
	if w.Indent != "" {
		encoder.SetIndent("", w.Indent)
	}
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	return nil
}

// WriteToFile writes data to path, replacing any existing file.
func (w *JSONWriter[T]) WriteToFile(data T, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := w.Write(data, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadFile decodes a file written by WriteToFile.
func ReadFile[T any](path string) (T, error) {
	var data T
	file, err := os.Open(path)
	if err != nil {
		return data, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var in io.Reader = file
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(file)
		if err != nil {
			return data, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		in = gz
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(file)
		if err != nil {
			return data, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer dec.Close()
		in = dec
	}
	if err := json.NewDecoder(in).Decode(&data); err != nil {
		return data, fmt.Errorf("failed to decode data: %w", err)
	}
	return data, nil
}
