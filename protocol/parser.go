package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	statusLinePattern  = regexp.MustCompile(`^\d{3}(\s.*)?$`)
	headerTokenPattern = regexp.MustCompile(`^[A-Z0-9_]+$`)
)

// ParseResponse normalizes a response body into a sequence of Records.
//
// Four encodings are recognized, tried in order: a streaming frame
// sequence (JSON lines tagged with a "type" key), a single JSON
// document, a pipe-delimited table, and raw lines. An optional leading
// status line is stripped before the body is classified.
//
// The only hard failure is ErrParse, for a body that is delimited like
// JSON but does not decode.
func ParseResponse(body string) ([]*Record, error) {
	lines := splitLines(body)

	if len(lines) > 0 && isStatusLine(lines[0]) {
		lines = lines[1:]
	}

	if len(lines) == 0 {
		return []*Record{}, nil
	}

	first := lines[0]

	if isFrameLine(first) {
		return parseFrameStream(lines), nil
	}

	rest := strings.TrimSpace(strings.Join(lines, "\n"))
	if strings.HasPrefix(rest, "{") || strings.HasPrefix(rest, "[") {
		return parseJSONDocument(rest)
	}

	if strings.Contains(first, "|") {
		return parsePipeTable(lines), nil
	}

	records := make([]*Record, 0, len(lines))
	for _, line := range lines {
		rec := NewRecord()
		rec.Set("raw", line)
		records = append(records, rec)
	}
	return records, nil
}

// ExtractErrorMessage pulls a human-readable message out of an error
// body: the "message" field when the body is JSON, otherwise the
// trimmed body itself, or a fixed fallback when empty.
func ExtractErrorMessage(body string) string {
	trimmed := strings.TrimSpace(body)

	if gjson.Valid(trimmed) {
		if message := gjson.Get(trimmed, "message"); message.Exists() {
			return message.String()
		}
	}

	if trimmed == "" {
		return "unknown server error"
	}

	return trimmed
}

// StatusFromBody derives a synthetic status code from the first line of
// a socket response: "ERROR:" maps to 400, a leading three-digit code
// is taken verbatim, anything else is a 200.
func StatusFromBody(body string) int {
	first := strings.TrimSpace(firstLine(body))

	if strings.HasPrefix(first, "ERROR:") {
		return 400
	}

	if len(first) >= 3 {
		if code, err := strconv.Atoi(first[:3]); err == nil {
			if len(first) == 3 || first[3] == ' ' {
				return code
			}
		}
	}

	return 200
}

func firstLine(body string) string {
	body = strings.TrimLeft(body, "\r\n")
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		return body[:idx]
	}
	return body
}

// splitLines breaks a body into trimmed, non-empty lines.
func splitLines(body string) []string {
	var lines []string

	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}

func isStatusLine(line string) bool {
	return line == "OK" || statusLinePattern.MatchString(line)
}

// isFrameLine reports whether a line is a JSON object carrying a "type"
// key, the marker of the streaming encoding.
func isFrameLine(line string) bool {
	if !strings.HasPrefix(line, "{") || !gjson.Valid(line) {
		return false
	}
	return gjson.Get(line, "type").Exists()
}

func parseFrameStream(lines []string) []*Record {
	var (
		schema  []string
		records []*Record
	)

	for _, line := range lines {
		if !gjson.Valid(line) {
			continue
		}

		frame := gjson.Parse(line)

		switch frame.Get("type").String() {
		case FrameSchema:
			schema = nil
			for _, col := range frame.Get("columns").Array() {
				schema = append(schema, col.String())
			}

		case FrameBatch:
			for _, row := range frame.Get("rows").Array() {
				if row.IsArray() {
					records = append(records, zipRow(schema, row))
				} else {
					rec := NewRecord()
					rec.Set("values", row.Value())
					records = append(records, rec)
				}
			}

		case FrameRow:
			values := frame.Get("values")
			switch {
			case values.IsArray():
				records = append(records, zipRow(schema, values))
			case values.IsObject():
				records = append(records, recordFromJSON(values))
			default:
				rec := NewRecord()
				rec.Set("values", values.Value())
				records = append(records, rec)
			}

		case FrameEnd:
			return records
		}
	}

	// No end frame ever arrived. Return everything parsed so far.
	return records
}

// zipRow pairs positional values against the current schema. Columns
// beyond the schema, or all of them when no schema frame has arrived,
// are named col_<index>.
func zipRow(schema []string, row gjson.Result) *Record {
	rec := NewRecord()

	for i, value := range row.Array() {
		name := fmt.Sprintf("col_%d", i)
		if i < len(schema) {
			name = schema[i]
		}
		rec.Set(name, value.Value())
	}

	return rec
}

func parseJSONDocument(body string) ([]*Record, error) {
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("%w: invalid JSON document", ErrParse)
	}

	doc := gjson.Parse(body)

	if doc.IsArray() {
		elements := doc.Array()
		records := make([]*Record, 0, len(elements))

		for _, element := range elements {
			if element.IsObject() {
				records = append(records, recordFromJSON(element))
			} else {
				rec := NewRecord()
				rec.Set("value", element.Value())
				records = append(records, rec)
			}
		}

		return records, nil
	}

	return []*Record{recordFromJSON(doc)}, nil
}

// recordFromJSON copies an object's fields in document order.
func recordFromJSON(obj gjson.Result) *Record {
	rec := NewRecord()

	obj.ForEach(func(key, value gjson.Result) bool {
		rec.Set(key.String(), value.Value())
		return true
	})

	return rec
}

func parsePipeTable(lines []string) []*Record {
	headers, ok := headerRow(lines)

	records := make([]*Record, 0, len(lines))

	if !ok {
		for _, line := range lines {
			records = append(records, rawParts(line))
		}
		return records
	}

	for _, line := range lines[1:] {
		parts := splitPipe(line)

		if len(parts) != len(headers) {
			// Ragged row. Fall back to raw for this row only.
			records = append(records, rawParts(line))
			continue
		}

		rec := NewRecord()
		for i, header := range headers {
			rec.Set(header, parts[i])
		}
		records = append(records, rec)
	}

	return records
}

// headerRow lower-cases a plausible header line: every token upper-case
// alphanumeric, and at least one data line following it.
func headerRow(lines []string) ([]string, bool) {
	if len(lines) < 2 {
		return nil, false
	}

	tokens := splitPipe(lines[0])

	headers := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !headerTokenPattern.MatchString(token) {
			return nil, false
		}
		headers = append(headers, strings.ToLower(token))
	}

	return headers, true
}

func splitPipe(line string) []string {
	parts := strings.Split(line, "|")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func rawParts(line string) *Record {
	rec := NewRecord()
	rec.Set("raw", line)
	rec.Set("parts", splitPipe(line))
	return rec
}
