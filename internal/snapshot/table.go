package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go-mailflow-dashboard/internal/tracking"
)

var (
	// ErrEmptySnapshot marks a document that is null, [] or {}.
	ErrEmptySnapshot = errors.New("snapshot is empty")
	// ErrMalformedSnapshot marks a document that is neither an array nor an object.
	ErrMalformedSnapshot = errors.New("snapshot is not an array or object")
)

// CheckShape classifies the top-level JSON value of a document.
func CheckShape(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrEmptySnapshot
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		if len(items) == 0 {
			return ErrEmptySnapshot
		}
		return nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		if len(obj) == 0 {
			return ErrEmptySnapshot
		}
		return nil
	default:
		return ErrMalformedSnapshot
	}
}

// Table is a generic snapshot flattened to rows. Columns follow the order in
// which keys were first seen; cells missing from an object are nil.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// DecodeTable flattens an array of objects, or a single object, into a Table.
func DecodeTable(data []byte) (*Table, error) {
	if err := CheckShape(data); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)

	var items []json.RawMessage
	if trimmed[0] == '{' {
		items = []json.RawMessage{trimmed}
	} else if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	t := &Table{Columns: []string{}, Rows: make([][]any, 0, len(items))}
	index := map[string]int{}
	objects := make([][]field, 0, len(items))
	for _, item := range items {
		fields, err := decodeOrderedObject(item)
		if err != nil {
			continue
		}
		for _, f := range fields {
			if _, ok := index[f.key]; !ok {
				index[f.key] = len(t.Columns)
				t.Columns = append(t.Columns, f.key)
			}
		}
		objects = append(objects, fields)
	}
	if len(objects) == 0 {
		return nil, ErrEmptySnapshot
	}

	for _, fields := range objects {
		row := make([]any, len(t.Columns))
		for _, f := range fields {
			row[index[f.key]] = f.value
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

type field struct {
	key   string
	value any
}

func decodeOrderedObject(raw json.RawMessage) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrMalformedSnapshot
	}
	var out []field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, ErrMalformedSnapshot
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, field{key: key, value: v})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

// ColumnIndex returns the index of name (case-insensitive) or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// StringColumn returns column i of every row rendered as text.
func (t *Table) StringColumn(i int) []string {
	out := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if i < 0 || i >= len(row) || row[i] == nil {
			out = append(out, "")
			continue
		}
		out = append(out, fmt.Sprint(row[i]))
	}
	return out
}

// ConvertJSONDates rewrites "/Date(ms)/" string cells into display timestamps.
func (t *Table) ConvertJSONDates(loc *time.Location) {
	for _, row := range t.Rows {
		for i, cell := range row {
			if s, ok := cell.(string); ok {
				row[i] = ConvertJSONDate(s, loc)
			}
		}
	}
}

// ConvertJSONDate renders a .NET "/Date(ms)/" value for display. Other values
// are returned unchanged.
func ConvertJSONDate(s string, loc *time.Location) string {
	if !strings.HasPrefix(strings.TrimSpace(s), "/Date(") {
		return s
	}
	t, ok := tracking.ParseTimestamp(s, loc)
	if !ok {
		return s
	}
	return tracking.FormatTime(t, loc)
}
