package weights

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/portal/portaltest"
)

func formRow(tagNo, weightText, huid string, input *portaltest.FakeElement, save *portaltest.FakeElement) *portaltest.FakeElement {
	row := portaltest.NewElement("")
	weightCell := portaltest.NewElement(weightText)
	row.Children = map[string][]*portaltest.FakeElement{
		"td": {
			portaltest.NewElement("1"),
			portaltest.NewElement(tagNo),
			portaltest.NewElement("Gold"),
			portaltest.NewElement("Ring"),
			portaltest.NewElement(huid),
			weightCell,
		},
	}
	if input != nil {
		row.Children["input#articlWeight"] = []*portaltest.FakeElement{input}
	}
	if save != nil {
		row.Children["button.saveWeight"] = []*portaltest.FakeElement{save}
	}
	return row
}

func TestFormURL(t *testing.T) {
	cfg := DefaultFormConfig("https://portal.example/MANAK")

	gold := cfg.FormURL("110000001", "120000001", model.MaterialGold)
	assert.Contains(t, gold, "/UID_WeighingForm?")
	assert.Contains(t, gold, "requestNo="+base64.StdEncoding.EncodeToString([]byte("110000001")))
	assert.Contains(t, gold, "jobNo="+base64.StdEncoding.EncodeToString([]byte("120000001")))

	silver := cfg.FormURL("110000001", "120000001", model.MaterialSilver)
	assert.Contains(t, silver, "/UID_WeighingFormSilver?")

	// Platinum and unknown fall back to the default form.
	platinum := cfg.FormURL("110000001", "120000001", model.MaterialPlatinum)
	assert.Contains(t, platinum, "/UID_WeighingForm?")
}

func TestFormObserver_Observe(t *testing.T) {
	d := portaltest.NewDriver()

	emptyInput := portaltest.NewElement("")
	save := portaltest.NewElement("Save")
	lockedInput := portaltest.NewElement("")
	lockedInput.Attrs = map[string]string{"value": "3.250", "disabled": "disabled"}

	lockedCellRow := formRow("T2", "", "", nil, nil)
	lockedCellRow.Children["td"][5].Children = map[string][]*portaltest.FakeElement{
		"input[disabled], input[readonly]": {lockedInput},
	}

	d.SetPage(portaltest.Page{
		"#weightTable tbody tr[role=row]": {
			formRow("T1", "Enter weight", "", emptyInput, save),
			lockedCellRow,
			formRow("T3", "4.120 gms", "", nil, nil),
		},
	})

	obs := NewFormObserver(d, DefaultFormConfig("https://portal.example/MANAK"))
	rows, err := obs.Observe(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "T1", rows[0].TagNo)
	assert.False(t, rows[0].Filled)
	assert.NotNil(t, rows[0].Fill)

	assert.True(t, rows[1].Filled, "disabled input with a value marks the row filled")
	assert.True(t, rows[2].Filled, "numeric weight text marks the row filled")
	assert.Nil(t, rows[2].Fill)
}

func TestFormObserver_FillRowTypesSavesAndAccepts(t *testing.T) {
	d := portaltest.NewDriver()
	d.PromptText = "Weight saved successfully"

	input := portaltest.NewElement("")
	save := portaltest.NewElement("Save")
	d.SetPage(portaltest.Page{
		"#weightTable tbody tr[role=row]": {formRow("T1", "", "", input, save)},
	})

	obs := NewFormObserver(d, DefaultFormConfig("https://portal.example/MANAK"))
	rows, err := obs.Observe(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Fill)

	require.NoError(t, rows[0].Fill(context.Background(), 4.125))
	assert.Equal(t, "4.125", input.InputValue)
	assert.Equal(t, 1, save.Clicks)
	assert.Equal(t, 1, d.PromptsAccepted)
}

func TestFormObserver_FillRowWithoutPrompt(t *testing.T) {
	d := portaltest.NewDriver()

	input := portaltest.NewElement("")
	save := portaltest.NewElement("Save")
	d.SetPage(portaltest.Page{
		"#weightTable tbody tr[role=row]": {formRow("T1", "", "", input, save)},
	})

	obs := NewFormObserver(d, DefaultFormConfig("https://portal.example/MANAK"))
	rows, err := obs.Observe(context.Background())
	require.NoError(t, err)

	// Saves that commit without a confirmation dialog are fine.
	require.NoError(t, rows[0].Fill(context.Background(), 2.5))
}

func TestFormObserver_MissingSaveControl(t *testing.T) {
	d := portaltest.NewDriver()

	input := portaltest.NewElement("")
	d.SetPage(portaltest.Page{
		"#weightTable tbody tr[role=row]": {formRow("T1", "", "", input, nil)},
	})

	obs := NewFormObserver(d, DefaultFormConfig("https://portal.example/MANAK"))
	rows, err := obs.Observe(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rows[0].Fill)

	assert.Error(t, rows[0].Fill(context.Background(), 2.5))
}

func TestFormObserver_HUIDCodes(t *testing.T) {
	d := portaltest.NewDriver()
	d.SetPage(portaltest.Page{
		"#weightTable tbody tr[role=row]": {
			formRow("T1", "4.120", "HUID001AA", nil, nil),
			formRow("T2", "3.250", "HUID002BB", nil, nil),
			formRow("T3", "", "", nil, nil),
		},
	})

	obs := NewFormObserver(d, DefaultFormConfig("https://portal.example/MANAK"))
	codes, err := obs.HUIDCodes(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"T1": "HUID001AA",
		"T2": "HUID002BB",
	}, codes)
}

func TestCache(t *testing.T) {
	c := Cache{
		"120000001": {"T1": model.WeightEntry{Weight: 1.5}, "T2": model.WeightEntry{Weight: 2.5}},
		"120000002": {"T3": model.WeightEntry{Weight: 3.5}},
	}
	assert.Equal(t, 3, c.Known())
	assert.Len(t, c.Job("120000001"), 2)
	assert.Nil(t, c.Job("120000009"))
}
