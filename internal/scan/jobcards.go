package scan

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/portal"
)

// JobCardConfig controls job-card discovery for one request on the
// quality-manager list page.
type JobCardConfig struct {
	ListURL           string
	CardLinkSelectors []string
	DeclarationRows   []string
	Limiter           interface {
		Wait(ctx context.Context) error
	}
}

// DefaultJobCardConfig returns the selector chains for the QM desk list.
func DefaultJobCardConfig(listURL string) JobCardConfig {
	return JobCardConfig{
		ListURL: listURL,
		CardLinkSelectors: []string{
			"a[href*='eJobCard=']",
			"td a[href*='JobCardView']",
		},
		DeclarationRows: []string{
			"table.declaration tbody tr",
			"#itemDeclaration tbody tr",
			"table tbody tr",
		},
	}
}

// JobCardScanner discovers (job number, item category) pairs for a request
// by opening each job-card view linked from the completed-requests list.
type JobCardScanner struct {
	session *portal.Session
	cfg     JobCardConfig
}

// NewJobCardScanner creates a JobCardScanner over the shared session.
func NewJobCardScanner(session *portal.Session, cfg JobCardConfig) *JobCardScanner {
	return &JobCardScanner{session: session, cfg: cfg}
}

// ScanRequest returns one record per job card found for requestNo. A card
// whose job number or item category cannot be read is logged and skipped;
// only failure to reach the list page is fatal.
func (s *JobCardScanner) ScanRequest(ctx context.Context, requestNo string) ([]model.RemoteJobRecord, error) {
	var records []model.RemoteJobRecord
	err := s.session.UseContext(ctx, func(d portal.Driver) error {
		if err := d.Navigate(ctx, s.cfg.ListURL); err != nil {
			return eris.Wrapf(err, "scan: open job card list for %s", requestNo)
		}

		hrefs := s.cardLinks(d, requestNo)
		if len(hrefs) == 0 {
			zap.L().Info("scan: request not found on list page",
				zap.String("request_no", requestNo),
			)
			return nil
		}
		zap.L().Debug("scan: job card links found",
			zap.String("request_no", requestNo),
			zap.Int("links", len(hrefs)),
		)

		for _, href := range hrefs {
			jobNo, ok := jobNoFromCardURL(href)
			if !ok {
				zap.L().Warn("scan: job card link without job number", zap.String("href", href))
				continue
			}
			if s.cfg.Limiter != nil {
				if err := s.cfg.Limiter.Wait(ctx); err != nil {
					return err
				}
			}
			if err := d.Navigate(ctx, href); err != nil {
				zap.L().Warn("scan: job card unreachable",
					zap.String("job_no", jobNo),
					zap.Error(err),
				)
				continue
			}
			category, ok := s.itemCategory(d)
			if !ok {
				zap.L().Warn("scan: job card without item category",
					zap.String("job_no", jobNo),
				)
				continue
			}
			records = append(records, model.RemoteJobRecord{
				JobNo:            jobNo,
				RequestNo:        requestNo,
				ItemCategoryText: category,
			})
		}
		return nil
	})
	return records, err
}

// cardLinks collects the job-card hrefs rendered on the row(s) for one
// request. Link text is ignored; the eJobCard parameter identifies a card.
func (s *JobCardScanner) cardLinks(d portal.Driver, requestNo string) []string {
	anchors, err := portal.LookupAll(d, "job card links", s.cfg.CardLinkSelectors...)
	if err != nil {
		return nil
	}

	var hrefs []string
	for _, a := range anchors {
		href, err := a.Attr("href")
		if err != nil || href == "" {
			continue
		}
		if !cardBelongsToRequest(href, requestNo) {
			continue
		}
		hrefs = append(hrefs, href)
	}
	return hrefs
}

// cardBelongsToRequest checks the request number embedded in the link, in
// the clear or base64-encoded.
func cardBelongsToRequest(href, requestNo string) bool {
	if strings.Contains(href, requestNo) {
		return true
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(requestNo))
	return strings.Contains(href, encoded)
}

// itemCategory reads the first item-category cell from the declaration
// table on an open job-card page.
func (s *JobCardScanner) itemCategory(d portal.Driver) (string, bool) {
	rows, err := portal.LookupAll(d, "declaration rows", s.cfg.DeclarationRows...)
	if err != nil {
		return "", false
	}
	for _, row := range rows {
		if category, ok := parseDeclarationRow(row); ok {
			return category, true
		}
	}
	return "", false
}

// jobNoFromCardURL extracts the base64-encoded job number from a card link
// (…&eJobCard=MTIyMTEyNDkw).
func jobNoFromCardURL(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	encoded := u.Query().Get("eJobCard")
	if encoded == "" {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	jobNo := strings.TrimSpace(string(decoded))
	if !isJobNo(jobNo) {
		return "", false
	}
	return jobNo, true
}
