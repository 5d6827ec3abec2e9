// Package bundle wraps trustchain.Bundle's JSON wire encoding with a
// gzip transport variant for bulk transfer between chain instances.
package bundle

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/trustchain"
)

// ToCompressedJSON gzips a chain's exported bundle JSON.
func ToCompressedJSON(b *trustchain.Bundle) ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("bundle: marshal: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("bundle: gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("bundle: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// FromCompressedJSON reverses ToCompressedJSON, decoding into a plain
// trustchain.Bundle for the caller to pass to trustchain.Import alongside
// its JSON re-encoding.
func FromCompressedJSON(data []byte) (*trustchain.Bundle, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bundle: gzip reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("bundle: read gzip: %w", err)
	}

	var b trustchain.Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal: %w", err)
	}
	return &b, nil
}
