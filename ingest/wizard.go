package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ortelius/vulnprio/model"
	"github.com/ortelius/vulnprio/scoring"
	"github.com/ortelius/vulnprio/util"
	"go.uber.org/zap"
)

var (
	// ErrInvalidJSON is returned when the submitted document does not parse.
	ErrInvalidJSON = errors.New("submitted document is not valid JSON")
	// ErrNoFindings is returned when no item of the document carries a cve_id.
	ErrNoFindings = errors.New("no vulnerabilities with a cve_id found")
)

// WizardItem is one vulnerability as submitted to the ingestion wizard. The
// threat signals are read from the flat fields or, when those are absent,
// from the nested enriched_data block.
type WizardItem struct {
	CveID            string        `json:"cve_id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Severity         string        `json:"severity"`
	ComponentName    string        `json:"component_name"`
	ComponentVersion string        `json:"component_version"`
	CVSSScore        any           `json:"cvss_score"`
	EPSSScore        any           `json:"epss_score"`
	KEVStatus        any           `json:"kev_status"`
	EnrichedData     *EnrichedData `json:"enriched_data,omitempty"`
}

// EnrichedData carries signals fetched from NVD, FIRST EPSS and CISA KEV.
type EnrichedData struct {
	CVSS struct {
		Score  any    `json:"score"`
		Vector string `json:"vector"`
	} `json:"cvss"`
	EPSS struct {
		Score      any `json:"score"`
		Percentile any `json:"percentile"`
	} `json:"epss"`
	KEV struct {
		Listed    any    `json:"listed"`
		DateAdded string `json:"date_added"`
	} `json:"kev"`
}

// Wizard validates, normalizes and scores freshly submitted vulnerabilities.
// These findings have no asset yet, so they are scored from their own signals.
type Wizard struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewWizard creates a Wizard. A nil clock uses time.Now.
func NewWizard(logger *zap.Logger, now func() time.Time) *Wizard {
	if now == nil {
		now = time.Now
	}
	return &Wizard{
		logger: logger.Named("wizard"),
		now:    now,
	}
}

// Process parses raw, keeps the items that carry a cve_id and returns them
// scored, with status NEW and the wizard's current time as creation date.
// raw may be {"vulnerabilities": [...]}, a list, or a single item.
func (w *Wizard) Process(raw []byte) ([]model.Vulnerability, []model.Warning, error) {
	items, err := parseWizardItems(raw)
	if err != nil {
		return nil, nil, err
	}

	now := w.now().UTC()
	var (
		out      []model.Vulnerability
		warnings []model.Warning
	)
	for i, item := range items {
		id := strings.TrimSpace(item.CveID)
		if id == "" {
			warnings = append(warnings, model.Warning{
				Kind:     model.WarningMissingID,
				Message:  fmt.Sprintf("item at position %d has no cve_id and was skipped", i),
				Position: i,
			})
			continue
		}

		cvss, cvssOK := util.ParseNumber(firstPresent(item.CVSSScore, enriched(item, func(e *EnrichedData) any { return e.CVSS.Score })))
		epss, epssOK := util.ParseNumber(firstPresent(item.EPSSScore, enriched(item, func(e *EnrichedData) any { return e.EPSS.Score })))
		kev := util.ParseFlag(firstPresent(item.KEVStatus, enriched(item, func(e *EnrichedData) any { return e.KEV.Listed })))
		if !cvssOK {
			warnings = append(warnings, unparseableWarning(id, "cvss_score", i))
		}
		if !epssOK {
			warnings = append(warnings, unparseableWarning(id, "epss_score", i))
		}

		title := item.Title
		if title == "" {
			title = "Vulnerability " + id
		}

		f := model.Finding{
			ID:               id,
			Title:            title,
			Description:      item.Description,
			ComponentName:    item.ComponentName,
			ComponentVersion: item.ComponentVersion,
			Severity:         scoring.SeverityFromCVSS(cvss),
			CVSSScore:        cvss,
			EPSSScore:        epss,
			KEVListed:        kev,
			Active:           true,
			CreatedAt:        now,
		}
		out = append(out, model.Vulnerability{
			Finding:       f,
			Status:        model.StatusNew,
			PriorityScore: model.Float(scoring.Score(scoring.FeaturesOf(f))),
			ScoreSource:   model.ScoreFromModel,
			Correlation:   model.Unmatched(model.ReasonNoCandidates, 0),
		})
	}

	for _, warning := range warnings {
		w.logger.Warn("Skipping malformed wizard input",
			zap.String("kind", string(warning.Kind)),
			zap.String("key", warning.Key),
			zap.String("message", warning.Message))
	}

	if len(out) == 0 {
		return nil, warnings, ErrNoFindings
	}
	w.logger.Info("Processed submitted vulnerabilities", zap.Int("accepted", len(out)), zap.Int("warnings", len(warnings)))
	return out, warnings, nil
}

func parseWizardItems(raw []byte) ([]WizardItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return nil, ErrInvalidJSON
	}

	if raw[0] == '[' {
		var items []WizardItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return items, nil
	}

	var envelope struct {
		Vulnerabilities []WizardItem `json:"vulnerabilities"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if envelope.Vulnerabilities != nil {
		return envelope.Vulnerabilities, nil
	}

	var single WizardItem
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return []WizardItem{single}, nil
}

func enriched(item WizardItem, get func(*EnrichedData) any) any {
	if item.EnrichedData == nil {
		return nil
	}
	return get(item.EnrichedData)
}

func firstPresent(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func unparseableWarning(id, field string, position int) model.Warning {
	return model.Warning{
		Kind:     model.WarningUnparseableField,
		Key:      id,
		Field:    field,
		Message:  "cannot parse value, defaulting to 0",
		Position: position,
	}
}

// ToRecord converts a wizard result into the record shape stored with the
// other findings, so the next snapshot picks it up.
func ToRecord(v model.Vulnerability) model.FindingRecord {
	flag := func(b bool) string {
		if b {
			return "True"
		}
		return "False"
	}
	return model.FindingRecord{
		ID:               v.ID,
		Title:            v.Title,
		Description:      v.Description,
		ComponentName:    v.ComponentName,
		ComponentVersion: v.ComponentVersion,
		Severity:         string(v.Severity),
		CVSSv3Score:      v.CVSSScore,
		EPSSScore:        v.EPSSScore,
		KEVStatus:        v.KEVListed,
		IsMitigated:      flag(v.IsMitigated),
		Active:           flag(v.Active),
		UnderReview:      flag(v.UnderReview),
		Created:          v.CreatedAt.Format(time.RFC3339),
		ObjType:          "Finding",
	}
}
