// Package extract locates the reply text inside the loosely shaped payloads
// returned by the n8n workflow webhook.
package extract

import (
	"encoding/json"
)

// Reply returns the reply text found in v, or "" when none is present.
//
// v is a value produced by encoding/json (map[string]any, []any, string,
// float64, bool or nil). Field priority follows the shapes observed from the
// workflow, most specific first:
//
//	[{message|text|response|output.tool_calls[0].args.text|output}]
//	{message|text|response|output(string)|output.message|output.text}
//	"plain string"
//
// message, text, response and the nested output fields match only when they
// hold a non-empty string: {"message":42,"text":"B"} yields "B". output on an
// array item matches whenever it is truthy and is returned as JSON.
func Reply(v any) string {
	switch val := v.(type) {
	case []any:
		if len(val) == 0 {
			return ""
		}
		item, ok := val[0].(map[string]any)
		if !ok {
			return ""
		}
		return fromArrayItem(item)
	case map[string]any:
		return fromObject(val)
	case string:
		return val
	default:
		return ""
	}
}

func fromArrayItem(item map[string]any) string {
	for _, key := range []string{"message", "text", "response"} {
		if s := stringField(item, key); s != "" {
			return s
		}
	}
	if s := toolCallText(item["output"]); s != "" {
		return s
	}
	if output, ok := item["output"]; ok && truthy(output) {
		b, err := json.Marshal(output)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

func fromObject(obj map[string]any) string {
	for _, key := range []string{"message", "text", "response"} {
		if s := stringField(obj, key); s != "" {
			return s
		}
	}
	switch output := obj["output"].(type) {
	case string:
		return output
	case map[string]any:
		if s := stringField(output, "message"); s != "" {
			return s
		}
		return stringField(output, "text")
	}
	return ""
}

// toolCallText reads output.tool_calls[0].args.text.
func toolCallText(output any) string {
	out, ok := output.(map[string]any)
	if !ok {
		return ""
	}
	calls, ok := out["tool_calls"].([]any)
	if !ok || len(calls) == 0 {
		return ""
	}
	call, ok := calls[0].(map[string]any)
	if !ok {
		return ""
	}
	args, ok := call["args"].(map[string]any)
	if !ok {
		return ""
	}
	return stringField(args, "text")
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case json.Number:
		return val.String() != "0"
	default:
		return true
	}
}
