package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/namespace"
)

// DecodeArguments turns a provider tool call with JSON encoded arguments into
// an Invocation. Malformed arguments fail with core.ErrUnparseable.
func DecodeArguments(action, arguments string) (core.Invocation, error) {
	if strings.TrimSpace(arguments) == "" {
		return core.NewInvocation(action, nil, nil), nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(arguments), &fields); err != nil {
		return core.Invocation{}, fmt.Errorf("%w: %s: %v", core.ErrUnparseable, action, err)
	}
	return decodeFields(action, fields), nil
}

// DecodeArgumentMap is DecodeArguments for providers that hand back already
// decoded arguments.
func DecodeArgumentMap(action string, arguments map[string]any) (core.Invocation, error) {
	fields := make(map[string]json.RawMessage, len(arguments))
	for k, v := range arguments {
		b, err := json.Marshal(v)
		if err != nil {
			return core.Invocation{}, fmt.Errorf("%w: %s: %v", core.ErrUnparseable, action, err)
		}
		fields[k] = b
	}
	return decodeFields(action, fields), nil
}

func decodeFields(action string, fields map[string]json.RawMessage) core.Invocation {
	var (
		payload *string
		attrs   = map[string]string{}
	)
	for k, raw := range fields {
		v := stringify(raw)
		if k == namespace.PayloadParameter {
			payload = core.String(v)
			continue
		}
		attrs[k] = v
	}
	return core.NewInvocation(action, attrs, payload)
}

// stringify renders a JSON value as text: strings by content, everything else
// by compact JSON. One leading and one trailing quote are then stripped.
func stringify(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var buf bytes.Buffer
		if json.Compact(&buf, raw) == nil {
			s = buf.String()
		} else {
			s = string(raw)
		}
	}
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return s
}
