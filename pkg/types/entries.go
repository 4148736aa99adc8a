package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Index is an integer key that also accepts its decimal string form,
// since JSON object keys arrive as strings.
type Index int

func (i *Index) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v, err := parseIndex(n.String())
		if err != nil {
			return err
		}
		*i = Index(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: index must be a number or numeric string", ErrInvalidMessage)
	}
	v, err := parseIndex(s)
	if err != nil {
		return err
	}
	*i = Index(v)
	return nil
}

// Ints converts a list of indices.
func Ints(idx []Index) []int {
	out := make([]int, len(idx))
	for i, v := range idx {
		out[i] = int(v)
	}
	return out
}

// Indices converts a list of ints.
func Indices(ints []int) []Index {
	out := make([]Index, len(ints))
	for i, v := range ints {
		out[i] = Index(v)
	}
	return out
}

func parseIndex(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	// 3.0 style numbers
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("%w: invalid index %q", ErrInvalidMessage, s)
	}
	return int(f), nil
}

// TextEntries is an ordered {index: text} object.
type TextEntries []TextEntry

func (e TextEntries) MarshalJSON() ([]byte, error) {
	return marshalObject(len(e), func(i int) (int, any) {
		return e[i].Index, e[i].Text
	})
}

func (e *TextEntries) UnmarshalJSON(data []byte) error {
	out := TextEntries{}
	err := decodeObject(data, func(key int, dec *json.Decoder) error {
		var text string
		if err := dec.Decode(&text); err != nil {
			return fmt.Errorf("%w: text for index %d: %v", ErrInvalidMessage, key, err)
		}
		out = append(out, TextEntry{Index: key, Text: text})
		return nil
	})
	if err != nil {
		return err
	}
	*e = out
	return nil
}

// UserEntries is an ordered {id: [callsign, note]} or {id: note} object.
type UserEntries []UserEntry

func (e UserEntries) MarshalJSON() ([]byte, error) {
	return marshalObject(len(e), func(i int) (int, any) {
		if e[i].Callsign == "" {
			return e[i].ID, e[i].Note
		}
		return e[i].ID, [2]string{e[i].Callsign, e[i].Note}
	})
}

func (e *UserEntries) UnmarshalJSON(data []byte) error {
	out := UserEntries{}
	err := decodeObject(data, func(key int, dec *json.Decoder) error {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: user %d: %v", ErrInvalidMessage, key, err)
		}
		entry := UserEntry{ID: key}

		var note string
		if err := json.Unmarshal(raw, &note); err == nil {
			entry.Note = note
			out = append(out, entry)
			return nil
		}

		var pair []string
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			return fmt.Errorf("%w: user %d must be a note or [callsign, note]", ErrInvalidMessage, key)
		}
		entry.Callsign, entry.Note = pair[0], pair[1]
		out = append(out, entry)
		return nil
	})
	if err != nil {
		return err
	}
	*e = out
	return nil
}

// ChatEntries is an ordered {seq: [time, label, text]} object.
type ChatEntries []ChatEntry

func (e ChatEntries) MarshalJSON() ([]byte, error) {
	return marshalObject(len(e), func(i int) (int, any) {
		return e[i].Seq, [3]string{e[i].Time, e[i].Label, e[i].Text}
	})
}

func (e *ChatEntries) UnmarshalJSON(data []byte) error {
	out := ChatEntries{}
	err := decodeObject(data, func(key int, dec *json.Decoder) error {
		var line []string
		if err := dec.Decode(&line); err != nil || len(line) != 3 {
			return fmt.Errorf("%w: chat %d must be [time, label, text]", ErrInvalidMessage, key)
		}
		out = append(out, ChatEntry{Seq: key, Time: line[0], Label: line[1], Text: line[2]})
		return nil
	})
	if err != nil {
		return err
	}
	*e = out
	return nil
}

func (c ChatAdd) MarshalJSON() ([]byte, error) {
	if c.Entries != nil {
		return c.Entries.MarshalJSON()
	}
	if c.Texts == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Texts)
}

func (c *ChatAdd) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = ChatAdd{}
		return nil
	}

	switch trimmed[0] {
	case '[':
		var texts []string
		if err := json.Unmarshal(trimmed, &texts); err != nil {
			return fmt.Errorf("%w: chat texts: %v", ErrInvalidMessage, err)
		}
		*c = ChatAdd{Texts: texts}
	case '{':
		var entries ChatEntries
		if err := entries.UnmarshalJSON(trimmed); err != nil {
			return err
		}
		*c = ChatAdd{Entries: entries}
	default:
		return fmt.Errorf("%w: Chat.ADD must be a list or an object", ErrInvalidMessage)
	}
	return nil
}

// decodeObject walks a JSON object in document order, handing each value
// to fn with its key coerced to an integer.
func decodeObject(data []byte, fn func(key int, dec *json.Decoder) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected object", ErrInvalidMessage)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		key, err := parseIndex(keyTok.(string))
		if err != nil {
			return err
		}
		if err := fn(key, dec); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

func marshalObject(n int, pair func(i int) (int, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, value := pair(i)
		buf.WriteByte('"')
		buf.WriteString(strconv.Itoa(key))
		buf.WriteString(`":`)
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
