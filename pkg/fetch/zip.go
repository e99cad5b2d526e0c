package fetch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

var zipMagic = []byte("PK\x03\x04")

// unwrapZip returns the contents of a single-file ZIP archive, preferring
// an .xml member when the archive holds several. Non-ZIP payloads pass
// through untouched.
func unwrapZip(body []byte) ([]byte, error) {
	if !bytes.HasPrefix(body, zipMagic) {
		return body, nil
	}

	reader, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip payload: %w", err)
	}
	if len(reader.File) == 0 {
		return nil, fmt.Errorf("zip payload contains no files")
	}

	selected := reader.File[0]
	for _, file := range reader.File {
		if strings.HasSuffix(strings.ToLower(file.Name), ".xml") {
			selected = file
			break
		}
	}

	rc, err := selected.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s in zip payload: %w", selected.Name, err)
	}
	defer rc.Close()

	contents, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from zip payload: %w", selected.Name, err)
	}
	return contents, nil
}
