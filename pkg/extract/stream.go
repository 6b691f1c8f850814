package extract

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// ErrUnparseable is returned when a body is neither JSON nor an NDJSON item stream.
var ErrUnparseable = errors.New("extract: body is not json")

const maxStreamLine = 1 << 20

type streamChunk struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// FromBody decodes a webhook body and returns its reply text.
// A body that is a single JSON document goes through Reply. Otherwise the body
// is read as newline-delimited {"type":"item","content":"..."} chunks, which is
// what the workflow emits when streaming is enabled.
func FromBody(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", nil
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err == nil {
		if text := Reply(v); text != "" {
			return text, nil
		}
		// a single-chunk stream is also a valid JSON document
		text, _, _ := readStream(bytes.NewReader(trimmed))
		return text, nil
	}

	text, n, err := readStream(bytes.NewReader(trimmed))
	if err != nil || n == 0 {
		return "", ErrUnparseable
	}
	return text, nil
}

// FromStream concatenates the content of every item chunk read from r.
// Lines that are not valid JSON are skipped.
func FromStream(r io.Reader) (string, error) {
	text, _, err := readStream(r)
	return text, err
}

// readStream returns the joined text and the number of lines that parsed as JSON.
func readStream(r io.Reader) (string, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	var (
		sb     strings.Builder
		parsed int
	)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		parsed++
		if chunk.Type == "item" && chunk.Content != "" {
			sb.WriteString(chunk.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), parsed, err
	}
	return sb.String(), parsed, nil
}
