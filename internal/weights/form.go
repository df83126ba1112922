package weights

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/portal"
)

// FormConfig locates the weighing form and its pieces. Selector lists are
// fallback chains.
type FormConfig struct {
	BaseURL       string
	SilverPath    string
	DefaultPath   string
	ReadySelector string
	RowSelectors  []string
	WeightInput   []string
	SaveButton    []string
	SubmitButton  []string
	TagColumn     int
	HUIDColumn    int
	WeightColumn  int
}

// DefaultFormConfig returns the portal's weighing-form layout.
func DefaultFormConfig(baseURL string) FormConfig {
	return FormConfig{
		BaseURL:       baseURL,
		SilverPath:    "/UID_WeighingFormSilver",
		DefaultPath:   "/UID_WeighingForm",
		ReadySelector: "#tabWeight",
		RowSelectors: []string{
			"#weightTable tbody tr[role=row]",
			"tr[role=row].odd, tr[role=row].even",
			"#tabWeight table tbody tr",
		},
		WeightInput:  []string{"input#articlWeight", "input[name=articlWeight]", "td input[type=text]"},
		SaveButton:   []string{"button.saveWeight", "button[id^=save]"},
		SubmitButton: []string{"#submitForPhoto", "button#submitForPhoto"},
		TagColumn:    1,
		HUIDColumn:   4,
		WeightColumn: 5,
	}
}

// FormURL builds the weighing-form address for one job. Request and job
// numbers travel base64-encoded, and silver jobs use their own form.
func (c FormConfig) FormURL(requestNo, jobNo string, material model.Material) string {
	path := c.DefaultPath
	if material == model.MaterialSilver {
		path = c.SilverPath
	}
	return fmt.Sprintf("%s%s?requestNo=%s&jobNo=%s",
		c.BaseURL, path,
		base64.StdEncoding.EncodeToString([]byte(requestNo)),
		base64.StdEncoding.EncodeToString([]byte(jobNo)),
	)
}

// FormObserver is the production Observer: it re-reads the weighing table
// of the page the driver currently shows. The caller opens the form first
// (Open) and holds the session for the whole fill.
type FormObserver struct {
	d   portal.Driver
	cfg FormConfig
}

// NewFormObserver builds an Observer over an exclusively-held driver.
func NewFormObserver(d portal.Driver, cfg FormConfig) *FormObserver {
	return &FormObserver{d: d, cfg: cfg}
}

// Open navigates to the job's weighing form and waits for it to render.
func (o *FormObserver) Open(ctx context.Context, requestNo, jobNo string, material model.Material) error {
	url := o.cfg.FormURL(requestNo, jobNo, material)
	if err := o.d.Navigate(ctx, url); err != nil {
		return eris.Wrapf(err, "weights: open form for job %s", jobNo)
	}
	ready, err := o.d.WaitUntil(ctx, portal.DefaultPageWait, func() (bool, error) {
		el, err := o.d.Find(o.cfg.ReadySelector)
		if err != nil {
			return false, nil
		}
		return el != nil, nil
	})
	if err != nil {
		return err
	}
	if !ready {
		return eris.Wrapf(portal.ErrNavigationTimeout, "weights: form not ready for job %s", jobNo)
	}
	return nil
}

// Observe reads the rows currently rendered. Rows without a recognizable
// tag are skipped.
func (o *FormObserver) Observe(ctx context.Context) ([]Row, error) {
	els, err := portal.LookupAll(o.d, "weight rows", o.cfg.RowSelectors...)
	if err != nil {
		if eris.Is(err, portal.ErrElementNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var rows []Row
	for _, el := range els {
		row, ok := o.parseRow(ctx, el)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (o *FormObserver) parseRow(_ context.Context, el portal.Element) (Row, bool) {
	cells, err := el.FindAll("td")
	if err != nil || len(cells) <= o.cfg.TagColumn {
		return Row{}, false
	}
	tagNo, err := cells[o.cfg.TagColumn].Text()
	if err != nil || strings.TrimSpace(tagNo) == "" {
		return Row{}, false
	}
	tagNo = strings.TrimSpace(tagNo)

	row := Row{TagNo: tagNo}
	if o.rowFilled(cells) {
		row.Filled = true
		return row, true
	}

	input := o.weightInput(el)
	if input == nil {
		// No input and no rendered weight: treat as saved elsewhere.
		row.Filled = true
		return row, true
	}
	if val, err := input.Attr("value"); err == nil && val != "" {
		if w, err := strconv.ParseFloat(val, 64); err == nil && w > 0 {
			row.Filled = true
			return row, true
		}
	}

	row.Fill = func(ctx context.Context, weight float64) error {
		return o.fillRow(ctx, el, input, tagNo, weight)
	}
	return row, true
}

// rowFilled detects a pre-existing weight: numeric text in the weight cell
// (ignoring "Enter weight" placeholders) or a disabled/readonly input that
// carries a value.
func (o *FormObserver) rowFilled(cells []portal.Element) bool {
	if len(cells) <= o.cfg.WeightColumn {
		return false
	}
	cell := cells[o.cfg.WeightColumn]

	if text, err := cell.Text(); err == nil {
		text = strings.TrimSpace(text)
		if text != "" && hasDigit(text) && !strings.Contains(strings.ToLower(text), "enter") {
			return true
		}
	}

	locked, err := cell.FindAll("input[disabled], input[readonly]")
	if err == nil {
		for _, in := range locked {
			if val, err := in.Attr("value"); err == nil && strings.TrimSpace(val) != "" {
				return true
			}
		}
	}
	return false
}

func (o *FormObserver) weightInput(row portal.Element) portal.Element {
	for _, sel := range o.cfg.WeightInput {
		in, err := row.Find(sel)
		if err == nil && in != nil {
			return in
		}
	}
	return nil
}

// fillRow types the weight, clicks the row's save control, and accepts the
// confirmation prompt. A missing prompt is fine; some saves commit without
// one.
func (o *FormObserver) fillRow(ctx context.Context, row, input portal.Element, tagNo string, weight float64) error {
	if err := input.Clear(); err != nil {
		return eris.Wrapf(err, "weights: clear input for tag %s", tagNo)
	}
	if err := input.Type(strconv.FormatFloat(weight, 'f', -1, 64)); err != nil {
		return eris.Wrapf(err, "weights: type weight for tag %s", tagNo)
	}

	var save portal.Element
	for _, sel := range o.cfg.SaveButton {
		el, err := row.Find(sel)
		if err == nil && el != nil {
			save = el
			break
		}
	}
	if save == nil {
		return eris.Wrapf(portal.ErrElementNotFound, "weights: save control for tag %s", tagNo)
	}
	if err := save.Click(); err != nil {
		return eris.Wrapf(err, "weights: save tag %s", tagNo)
	}

	text, err := o.d.AcceptPrompt(ctx)
	switch {
	case err == nil:
		zap.L().Debug("weights: save confirmed",
			zap.String("tag_no", tagNo),
			zap.String("prompt", text),
		)
	case eris.Is(err, portal.ErrNoPrompt):
		zap.L().Debug("weights: saved without prompt", zap.String("tag_no", tagNo))
	default:
		return eris.Wrapf(err, "weights: prompt for tag %s", tagNo)
	}
	return nil
}

// HUIDCodes reads the tag-to-HUID mapping from the filled table. Rows
// without both values are skipped.
func (o *FormObserver) HUIDCodes(_ context.Context) (map[string]string, error) {
	els, err := portal.LookupAll(o.d, "huid rows", o.cfg.RowSelectors...)
	if err != nil {
		if eris.Is(err, portal.ErrElementNotFound) {
			return nil, nil
		}
		return nil, err
	}

	codes := make(map[string]string)
	for _, el := range els {
		cells, err := el.FindAll("td")
		if err != nil || len(cells) <= o.cfg.HUIDColumn {
			continue
		}
		tagNo, err1 := cells[o.cfg.TagColumn].Text()
		huid, err2 := cells[o.cfg.HUIDColumn].Text()
		if err1 != nil || err2 != nil {
			continue
		}
		tagNo, huid = strings.TrimSpace(tagNo), strings.TrimSpace(huid)
		if tagNo != "" && huid != "" {
			codes[tagNo] = huid
		}
	}
	return codes, nil
}

// SubmitForDelivery clicks the delivery-voucher submission control after a
// successful fill, accepting its confirmation. Absence of the control is
// not an error; not every job exposes it.
func (o *FormObserver) SubmitForDelivery(ctx context.Context) (bool, error) {
	el, err := portal.Lookup(o.d, "delivery submit",
		toStrategies(o.cfg.SubmitButton)...)
	if err != nil {
		return false, nil
	}
	if visible, err := el.Visible(); err != nil || !visible {
		return false, nil
	}
	if err := el.Click(); err != nil {
		return false, eris.Wrap(err, "weights: submit for delivery")
	}
	if text, err := o.d.AcceptPrompt(ctx); err == nil {
		zap.L().Debug("weights: delivery submission confirmed", zap.String("prompt", text))
	}
	return true, nil
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func toStrategies(selectors []string) []portal.Strategy {
	out := make([]portal.Strategy, 0, len(selectors))
	for _, sel := range selectors {
		out = append(out, portal.BySelector(sel))
	}
	return out
}
