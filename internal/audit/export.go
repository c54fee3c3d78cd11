package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"time"
)

// WriteCSV menyerialisasi baris timeline ke CSV.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"At", "Actor", "Tenant", "Action", "Entity", "EntityID", "Meta"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		meta := ""
		if len(row.Meta) > 0 {
			raw, err := json.Marshal(row.Meta)
			if err != nil {
				return nil, err
			}
			meta = string(raw)
		}
		if err := writer.Write([]string{
			row.At.UTC().Format(time.RFC3339),
			row.ActorID,
			row.TenantID,
			row.Action,
			row.Entity,
			row.EntityID,
			meta,
		}); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
