package webhooks

import (
	"strconv"
	"strings"
)

// ExtractFields reduces a payload to the configured keys. Keys absent on
// the payload are omitted, not defaulted. Never fails; a nil or empty
// field list yields an empty map.
func ExtractFields(payload map[string]interface{}, fields []string) map[string]interface{} {
	extracted := make(map[string]interface{})
	for _, field := range fields {
		if field == "" {
			continue
		}
		if value, ok := payload[field]; ok {
			extracted[field] = value
		}
	}
	return extracted
}

// Candidate keys checked in priority order, case-insensitively.
var eventTypeKeys = []string{"eventtype", "event_type", "event", "action", "type"}
var companyIDKeys = []string{"companyid", "company_id", "company", "tenantid", "tenant_id"}
var externalIDKeys = []string{"eventid", "event_id", "id", "uuid"}

// DetectEventType returns the externally-reported event type, or "unknown"
// when the payload carries none of the candidate keys.
func DetectEventType(payload map[string]interface{}) string {
	if v := DetectValue(payload, eventTypeKeys); v != "" {
		return v
	}
	return "unknown"
}

// DetectCompanyID returns the opaque company/tenant identifier reported on
// the payload, if any.
func DetectCompanyID(payload map[string]interface{}) string {
	return DetectValue(payload, companyIDKeys)
}

// DetectExternalEventID returns the sender's own event identifier, if any.
func DetectExternalEventID(payload map[string]interface{}) string {
	return DetectValue(payload, externalIDKeys)
}

// DetectValue returns the first candidate key present on the payload,
// matched case-insensitively, rendered as a string. Non-string scalars are
// accepted; nested values are ignored.
func DetectValue(payload map[string]interface{}, candidates []string) string {
	for _, candidate := range candidates {
		for key, value := range payload {
			if !strings.EqualFold(key, candidate) {
				continue
			}
			switch v := value.(type) {
			case string:
				if v != "" {
					return v
				}
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			case bool:
				if v {
					return "true"
				}
				return "false"
			}
		}
	}
	return ""
}
