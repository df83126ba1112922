package scan

import (
	"strings"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/portal"
)

// Portal list column layout: serial, request no, job no, job date, material,
// then status columns. Rows that deviate are recovered per field by pattern,
// or skipped.
const (
	colRequestNo = 1
	colJobNo     = 2
	colMaterial  = 4
	colStatus    = 6
)

// parseRow extracts one record from a table row. Request numbers are 8+
// digit strings starting with 11, job numbers with 12; when the expected
// column does not hold one, every cell is searched before giving up.
func parseRow(row portal.Element) (model.RemoteJobRecord, bool) {
	cells, err := row.FindAll("td")
	if err != nil || len(cells) < 4 {
		return model.RemoteJobRecord{}, false
	}

	texts := make([]string, len(cells))
	for i, c := range cells {
		if t, err := c.Text(); err == nil {
			texts[i] = strings.TrimSpace(t)
		}
	}

	requestNo := cellAt(texts, colRequestNo)
	if !isRequestNo(requestNo) {
		requestNo = findByPattern(texts, isRequestNo)
	}
	jobNo := cellAt(texts, colJobNo)
	if !isJobNo(jobNo) {
		jobNo = findByPattern(texts, isJobNo)
	}

	material := parseMaterial(cellAt(texts, colMaterial))
	if material == model.MaterialUnknown {
		for _, t := range texts {
			if m := parseMaterial(t); m != model.MaterialUnknown {
				material = m
				break
			}
		}
	}

	if requestNo == "" || jobNo == "" {
		return model.RemoteJobRecord{}, false
	}

	rec := model.RemoteJobRecord{
		JobNo:        jobNo,
		RequestNo:    requestNo,
		Material:     material,
		PortalStatus: cellAt(texts, colStatus),
	}
	if len(texts) > colStatus+1 && texts[colStatus+1] != "" {
		// The time column carries the authoritative completion marker.
		rec.PortalStatus = texts[colStatus+1]
	}
	return rec, true
}

// parseDeclarationRow reads an item-declaration row: the variant rendered
// by the job-card view, where column 1 is the item category.
func parseDeclarationRow(row portal.Element) (string, bool) {
	cells, err := row.FindAll("td")
	if err != nil || len(cells) < 2 {
		return "", false
	}
	text, err := cells[1].Text()
	if err != nil {
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

func cellAt(texts []string, i int) string {
	if i < len(texts) {
		return texts[i]
	}
	return ""
}

func findByPattern(texts []string, ok func(string) bool) string {
	for _, t := range texts {
		if ok(t) {
			return t
		}
	}
	return ""
}

func isRequestNo(s string) bool {
	return len(s) >= 8 && allDigits(s) && strings.HasPrefix(s, "11")
}

func isJobNo(s string) bool {
	return len(s) >= 8 && allDigits(s) && strings.HasPrefix(s, "12")
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseMaterial(s string) model.Material {
	for _, m := range model.KnownMaterials() {
		if strings.EqualFold(s, string(m)) {
			return m
		}
	}
	return model.MaterialUnknown
}
