// Package validator checks record-change notifications before they are
// published.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/ingestion"
)

// MaxRecordIDs bounds the ids carried by one notification.
const MaxRecordIDs = 1000

var reasons = map[string]struct{}{
	ingestion.ReasonCreated:       {},
	ingestion.ReasonUpdated:       {},
	ingestion.ReasonDeleted:       {},
	ingestion.ReasonStatusChanged: {},
	ingestion.ReasonFieldChanged:  {},
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func ValidateChangeRequest(req *ingestion.ChangeRequest) error {
	errs := make(map[string]string)

	switch n := len(req.RecordIDs); {
	case n == 0:
		errs["record_ids"] = "at least one record id is required"
	case n > MaxRecordIDs:
		errs["record_ids"] = fmt.Sprintf("at most %d record ids per request", MaxRecordIDs)
	default:
		for _, id := range req.RecordIDs {
			if id <= 0 {
				errs["record_ids"] = fmt.Sprintf("record id %d must be positive", id)
				break
			}
		}
	}
	if req.Reason != "" {
		if _, ok := reasons[req.Reason]; !ok {
			errs["reason"] = fmt.Sprintf("unknown reason %q", req.Reason)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
