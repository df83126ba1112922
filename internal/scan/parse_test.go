package scan

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/portal"
	"github.com/assayworks/hallmark-cli/internal/portal/portaltest"
)

func rowWithCells(cells ...string) *portaltest.FakeElement {
	row := portaltest.NewElement("")
	var els []*portaltest.FakeElement
	for _, c := range cells {
		els = append(els, portaltest.NewElement(c))
	}
	row.Children = map[string][]*portaltest.FakeElement{"td": els}
	return row
}

func TestParseRow_DirectColumns(t *testing.T) {
	row := rowWithCells("1", "110012345", "120012345", "01/08/2026", "Gold", "Enter Weight")
	rec, ok := parseRow(row)
	require.True(t, ok)
	assert.Equal(t, "110012345", rec.RequestNo)
	assert.Equal(t, "120012345", rec.JobNo)
	assert.Equal(t, model.MaterialGold, rec.Material)
}

func TestParseRow_FallbackCellSearch(t *testing.T) {
	// Columns shuffled by an extra leading cell: direct extraction fails,
	// the per-field pattern search recovers.
	row := rowWithCells("", "1", "110012345", "120012345", "01/08/2026", "Silver")
	rec, ok := parseRow(row)
	require.True(t, ok)
	assert.Equal(t, "110012345", rec.RequestNo)
	assert.Equal(t, "120012345", rec.JobNo)
	assert.Equal(t, model.MaterialSilver, rec.Material)
}

func TestParseRow_MalformedRows(t *testing.T) {
	tests := []struct {
		name string
		row  *portaltest.FakeElement
	}{
		{"too few cells", rowWithCells("1", "2")},
		{"no request number", rowWithCells("1", "junk", "120012345", "x", "Gold")},
		{"no job number", rowWithCells("1", "110012345", "junk", "x", "Gold")},
		{"wrong prefixes", rowWithCells("1", "990012345", "880012345", "x", "Gold")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseRow(tt.row)
			assert.False(t, ok)
		})
	}
}

func TestParseRow_MaterialUnknown(t *testing.T) {
	rec, ok := parseRow(rowWithCells("1", "110012345", "120012345", "x", "Paper"))
	require.True(t, ok)
	assert.Equal(t, model.MaterialUnknown, rec.Material)
}

func TestJobNoFromCardURL(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("120112490"))
	jobNo, ok := jobNoFromCardURL("https://portal.example/CardView?hmType=HMQM&eJobCard=" + encoded)
	require.True(t, ok)
	assert.Equal(t, "120112490", jobNo)

	_, ok = jobNoFromCardURL("https://portal.example/CardView?other=1")
	assert.False(t, ok)

	_, ok = jobNoFromCardURL("https://portal.example/CardView?eJobCard=!!!notbase64")
	assert.False(t, ok)

	// Decodes but is not a job number.
	bogus := base64.StdEncoding.EncodeToString([]byte("hello"))
	_, ok = jobNoFromCardURL("https://portal.example/CardView?eJobCard=" + bogus)
	assert.False(t, ok)
}

func TestJobCardScanner_ScanRequest(t *testing.T) {
	d := portaltest.NewDriver()

	requestNo := "110012345"
	jobA := base64.StdEncoding.EncodeToString([]byte("120000001"))
	jobB := base64.StdEncoding.EncodeToString([]byte("120000002"))
	cardA := "https://portal.example/CardView?eJobCard=" + jobA + "&req=" + requestNo
	cardB := "https://portal.example/CardView?eJobCard=" + jobB + "&req=" + requestNo

	linkA := portaltest.NewElement("QM Job Card View")
	linkA.Attrs = map[string]string{"href": cardA}
	linkB := portaltest.NewElement("QM Job Card View")
	linkB.Attrs = map[string]string{"href": cardB}

	d.Pages["https://portal.example/qmlist"] = portaltest.Page{
		"a[href*='eJobCard=']": {linkA, linkB},
	}
	d.Pages[cardA] = portaltest.Page{
		"table tbody tr": {rowWithCells("1", "Gold Ring", "22K916", "10")},
	}
	d.Pages[cardB] = portaltest.Page{
		"table tbody tr": {rowWithCells("1", "Gold Chain", "22K916", "4")},
	}

	s := NewJobCardScanner(portal.NewSession(d), DefaultJobCardConfig("https://portal.example/qmlist"))
	records, err := s.ScanRequest(context.Background(), requestNo)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "120000001", records[0].JobNo)
	assert.Equal(t, "Gold Ring", records[0].ItemCategoryText)
	assert.Equal(t, "120000002", records[1].JobNo)
	assert.Equal(t, "Gold Chain", records[1].ItemCategoryText)
	assert.Equal(t, requestNo, records[0].RequestNo)
}
