package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Export writes all retained entries, oldest first, to w in the given format.
func (l *Logger) Export(w io.Writer, format string) error {
	entries := l.snapshot()
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		header := []string{"id", "timestamp", "actor_id", "action", "resource", "resource_id", "success", "error", "source_address", "details"}
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, e := range entries {
			rec := []string{
				e.ID,
				e.Timestamp.Format(time.RFC3339),
				e.ActorID,
				e.Action,
				e.Resource,
				e.ResourceID,
				strconv.FormatBool(e.Success),
				e.Error,
				e.SourceAddress,
				flattenDetails(e.Details),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case FormatJSON:
		out := make([]fileEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, fileEntry{
				ID:            e.ID,
				ActorID:       e.ActorID,
				Action:        e.Action,
				Resource:      e.Resource,
				ResourceID:    e.ResourceID,
				Success:       e.Success,
				Error:         e.Error,
				Details:       e.Details,
				SourceAddress: e.SourceAddress,
				Timestamp:     e.Timestamp,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		return fmt.Errorf("audit: unsupported export format %q", format)
	}
}

func flattenDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+details[k])
	}
	return strings.Join(parts, ";")
}
