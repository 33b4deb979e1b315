package dataset

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeUpload reads an uploaded CSV and parses it into a Table. Files are
// treated as UTF-8 (a leading BOM is stripped); bytes that are not valid
// UTF-8 are reinterpreted as Latin-1, which covers the usual
// Excel-on-Windows exports.
func DecodeUpload(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if !utf8.Valid(raw) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decode upload: %w", err)
		}
		raw = decoded
	}
	return Parse(raw)
}
