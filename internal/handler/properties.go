package handler

import (
	"encoding/json"

	"github.com/example/ecrdeploy/internal/credentials"
)

// Resource property names.
const (
	PropSrcImage  = "SrcImage"
	PropSrcCreds  = "SrcCreds"
	PropDestImage = "DestImage"
	PropDestCreds = "DestCreds"
)

const masked = "****"

// DumpEvent renders ev as indented JSON with inline credentials masked.
func DumpEvent(ev Event) string {
	dump := Event{RequestType: ev.RequestType, ResourceProperties: MaskProperties(ev.ResourceProperties)}
	b, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return ev.RequestType
	}
	return string(b)
}

// MaskProperties returns a copy of props in which credential values that carry a
// password are replaced. Secret names and ARNs are kept.
func MaskProperties(props map[string]interface{}) map[string]interface{} {
	if props == nil {
		return nil
	}
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = v
	}
	for _, key := range []string{PropSrcCreds, PropDestCreds} {
		raw, ok := out[key]
		if !ok || raw == nil {
			continue
		}
		if ref, err := credentials.ParseReference(raw); err != nil || ref.Kind == credentials.KindInline {
			out[key] = masked
		}
	}
	return out
}
