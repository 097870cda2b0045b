package formlogic

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrReportMismatch is returned by Verify when a replay disagrees with the
// claimed report.
var ErrReportMismatch = errors.New("formlogic: report does not match replay")

// Run evaluates a stored form document against a raw JSON response as of
// date, using the default engine. See Engine.Run.
func Run(formJSON, responseJSON []byte, date time.Time) ([]byte, error) {
	return defaultEngine.Run(formJSON, responseJSON, date)
}

// Verify replays a report with the default engine. See Engine.Verify.
func Verify(formJSON, responseJSON, reportJSON []byte) (bool, error) {
	return defaultEngine.Verify(formJSON, responseJSON, reportJSON)
}

// Run decodes the form (JSON or YAML) and the response, evaluates them and
// returns the report as JSON. A date outside the form's acceptance window
// yields status CLOSED; the field results are still computed.
func (e *Engine) Run(formJSON, responseJSON []byte, date time.Time) ([]byte, error) {
	report, err := e.runReport(formJSON, responseJSON, date)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return out, nil
}

func (e *Engine) runReport(formJSON, responseJSON []byte, date time.Time) (*Report, error) {
	form, err := LoadForm(formJSON, e.registry)
	if err != nil {
		return nil, err
	}
	values, err := ParseResponse(responseJSON)
	if err != nil {
		return nil, err
	}

	return e.EvaluateAt(form, values, date)
}

// EvaluateAt evaluates values against form as of date, recording the date in
// the report and closing it when date is outside the acceptance window.
func (e *Engine) EvaluateAt(form *Form, values Values, date time.Time) (*Report, error) {
	report, err := e.EvaluateForm(form, values)
	if err != nil {
		return nil, err
	}
	report.EffectiveDate = formatDate(date)
	if !form.Accepts(date) {
		e.logger.Info().
			Str("form", form.ID).
			Str("date", report.EffectiveDate).
			Msg("submission outside acceptance window")
		report.Status = StatusClosed
		report.Valid = false
	}
	return report, nil
}

// Verify checks that reportJSON is exactly what Run produces for the same form
// and response at the report's effective date. Formatting differences in
// reportJSON are ignored; any difference in content is a mismatch.
func (e *Engine) Verify(formJSON, responseJSON, reportJSON []byte) (bool, error) {
	var claimed Report
	if err := json.Unmarshal(reportJSON, &claimed); err != nil {
		return false, fmt.Errorf("%w: report: %v", ErrInvalidInput, err)
	}
	date, ok := parseDate(claimed.EffectiveDate)
	if !ok {
		return false, fmt.Errorf("%w: report has no effective_date", ErrInvalidInput)
	}

	replay, err := e.runReport(formJSON, responseJSON, date)
	if err != nil {
		return false, fmt.Errorf("replay failed: %w", err)
	}

	want, err := canonical(replay)
	if err != nil {
		return false, fmt.Errorf("replay: %w", err)
	}
	got, err := canonical(&claimed)
	if err != nil {
		return false, fmt.Errorf("report: %w", err)
	}
	if bytes.Equal(want, got) {
		return true, nil
	}
	return false, describeMismatch(&claimed, replay)
}

// canonical encodes r the way it reads back after a JSON round trip.
func canonical(r *Report) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var back Report
	if err := json.Unmarshal(data, &back); err != nil {
		return nil, err
	}
	return json.Marshal(&back)
}

// describeMismatch names the first difference between two reports.
func describeMismatch(claimed, replay *Report) error {
	if claimed.Status != replay.Status {
		return fmt.Errorf("%w: status %s, replay %s", ErrReportMismatch, claimed.Status, replay.Status)
	}
	if len(claimed.Fields) != len(replay.Fields) {
		return fmt.Errorf("%w: %d fields, replay %d", ErrReportMismatch, len(claimed.Fields), len(replay.Fields))
	}
	for i := range replay.Fields {
		a, b := claimed.Fields[i], replay.Fields[i]
		if a.ID != b.ID || a.Visible != b.Visible || a.Required != b.Required ||
			!a.Value.Equal(b.Value) || len(a.Violations) != len(b.Violations) {
			return fmt.Errorf("%w: field '%s'", ErrReportMismatch, b.ID)
		}
	}
	return fmt.Errorf("%w: report content differs", ErrReportMismatch)
}
