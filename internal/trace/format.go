package trace

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format selects how events are serialized.
type Format uint8

const (
	FormatAuto    Format = iota // chosen from the output path
	FormatText                  // one human-readable line per event
	FormatNDJSON                // one JSON object per line
	FormatMsgpack               // concatenated msgpack maps
)

var formatNames = map[string]Format{
	"":        FormatAuto,
	"auto":    FormatAuto,
	"text":    FormatText,
	"ndjson":  FormatNDJSON,
	"json":    FormatNDJSON,
	"msgpack": FormatMsgpack,
}

// ParseFormat converts a format name.
func ParseFormat(s string) (Format, error) {
	if f, ok := formatNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format: %q (expected: auto|text|ndjson|msgpack)", s)
}

// wireEvent is the record shared by the NDJSON and msgpack formats.
type wireEvent struct {
	Time     string            `json:"time" msgpack:"time"`
	Seq      uint64            `json:"seq" msgpack:"seq"`
	Kind     string            `json:"kind" msgpack:"kind"`
	Scope    string            `json:"scope" msgpack:"scope"`
	SpanID   uint64            `json:"span_id,omitempty" msgpack:"span_id,omitempty"`
	ParentID uint64            `json:"parent_id,omitempty" msgpack:"parent_id,omitempty"`
	Task     uint64            `json:"task,omitempty" msgpack:"task,omitempty"`
	Name     string            `json:"name" msgpack:"name"`
	Detail   string            `json:"detail,omitempty" msgpack:"detail,omitempty"`
	Extra    map[string]string `json:"extra,omitempty" msgpack:"extra,omitempty"`
}

const wireTime = "2006-01-02T15:04:05.000000Z07:00"

// FormatEvent serializes ev. Unknown formats fall back to text.
func FormatEvent(ev *Event, format Format) []byte {
	if ev == nil {
		return nil
	}
	if format == FormatText || format == FormatAuto {
		return formatText(ev)
	}
	w := wireEvent{
		Time:     ev.Time.Format(wireTime),
		Seq:      ev.Seq,
		Kind:     ev.Kind.String(),
		Scope:    ev.Scope.String(),
		SpanID:   ev.SpanID,
		ParentID: ev.ParentID,
		Task:     ev.Task,
		Name:     ev.Name,
		Detail:   ev.Detail,
		Extra:    ev.Extra,
	}
	switch format {
	case FormatNDJSON:
		data, err := json.Marshal(w)
		if err != nil {
			return nil
		}
		return append(data, '\n')
	case FormatMsgpack:
		data, err := msgpack.Marshal(w)
		if err != nil {
			return nil
		}
		return data
	default:
		return formatText(ev)
	}
}

var kindMarks = map[Kind]string{
	KindSpanBegin: "→",
	KindSpanEnd:   "←",
	KindPoint:     "•",
	KindHeartbeat: "♡",
}

// formatText renders
//
//	[seq] [t#task] mark scope:name (detail) {k=v, ...}
//
// with nested spans indented by two spaces.
func formatText(ev *Event) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%6d] ", ev.Seq)
	if ev.Task != 0 {
		fmt.Fprintf(&sb, "t#%d ", ev.Task)
	}
	if ev.ParentID != 0 {
		sb.WriteString("  ")
	}
	if mark, ok := kindMarks[ev.Kind]; ok {
		sb.WriteString(mark)
		sb.WriteByte(' ')
	}
	sb.WriteString(ev.Scope.String())
	sb.WriteByte(':')
	sb.WriteString(ev.Name)
	if ev.Detail != "" {
		fmt.Fprintf(&sb, " (%s)", ev.Detail)
	}
	if len(ev.Extra) > 0 {
		keys := make([]string, 0, len(ev.Extra))
		for k := range ev.Extra {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k + "=" + ev.Extra[k])
		}
		sb.WriteByte('}')
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}
