package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/types"
)

// LoadContacts reads campaign targets from a spreadsheet, auto-detecting
// columns by header heuristics. Rows without a dialable phone number are
// skipped quietly.
func LoadContacts(path string) ([]types.Contact, error) {
	log := logger.New().WithComponent("dataset").WithField("path", path)

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	header := rows[0]
	nameIdx, phoneIdx, emailIdx, notesIdx := -1, -1, -1, -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case phoneIdx == -1 && (strings.Contains(l, "phone") || strings.Contains(l, "mobile") || strings.Contains(l, "number")):
			phoneIdx = i
		case nameIdx == -1 && strings.Contains(l, "name"):
			nameIdx = i
		case emailIdx == -1 && strings.Contains(l, "email"):
			emailIdx = i
		case notesIdx == -1 && (strings.Contains(l, "note") || strings.Contains(l, "comment")):
			notesIdx = i
		}
	}
	if phoneIdx == -1 {
		// Common export layouts put the number in the second column.
		if len(header) > 1 {
			phoneIdx = 1
		} else {
			return nil, fmt.Errorf("no phone column detected")
		}
	}
	log.WithField("phone_col", phoneIdx).Debug("detected contact columns")

	var out []types.Contact
	for i, r := range rows {
		if i == 0 {
			continue
		}
		c := types.Contact{}
		if nameIdx >= 0 && nameIdx < len(r) {
			c.Name = strings.TrimSpace(r[nameIdx])
		}
		if phoneIdx < len(r) {
			c.Phone = strings.TrimSpace(r[phoneIdx])
		}
		if emailIdx >= 0 && emailIdx < len(r) {
			c.Email = strings.TrimSpace(r[emailIdx])
		}
		if notesIdx >= 0 && notesIdx < len(r) {
			c.Notes = strings.TrimSpace(r[notesIdx])
		}
		if countDigits(c.Phone) < 7 {
			continue
		}
		out = append(out, c)
	}
	log.WithField("contacts", len(out)).Info("contact list loaded")
	return out, nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
