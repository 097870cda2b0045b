package formlogic

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signupResponse = `{"email": "ada@example.org", "country": "US", "age": 30}`

func TestRunReport(t *testing.T) {
	date := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	out, err := Run([]byte(signupJSON), []byte(signupResponse), date)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(out, &report))
	assert.Equal(t, StatusIncomplete, report.Status, "state is shown for US and left empty")
	assert.Equal(t, "2025-06-01T12:00:00Z", report.EffectiveDate)

	state, ok := report.Field("state")
	require.True(t, ok)
	assert.True(t, state.Visible)
	assert.Equal(t, []Code{CodeRequired}, state.Codes())
}

func TestRunAcceptanceWindow(t *testing.T) {
	tests := []struct {
		name   string
		date   time.Time
		closed bool
	}{
		{"before", time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), true},
		{"opening day", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"last second", time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), false},
		{"after", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Run([]byte(signupJSON), []byte(signupResponse), tt.date)
			require.NoError(t, err)
			var report Report
			require.NoError(t, json.Unmarshal(out, &report))
			if tt.closed {
				assert.Equal(t, StatusClosed, report.Status)
				assert.False(t, report.Valid)
			} else {
				assert.NotEqual(t, StatusClosed, report.Status)
			}
			assert.Len(t, report.Fields, 5, "fields are evaluated either way")
		})
	}
}

func TestFormAccepts(t *testing.T) {
	open := &Form{}
	assert.True(t, open.Accepts(time.Time{}))

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(24 * time.Hour)
	window := &Form{ValidFrom: &from, ExpiresAt: &until}
	assert.True(t, window.Accepts(from.Add(time.Hour)))
	assert.False(t, window.Accepts(until.Add(time.Second)))
	assert.NoError(t, window.CheckWindow())

	inverted := &Form{ValidFrom: &until, ExpiresAt: &from}
	assert.Error(t, inverted.CheckWindow())
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2025-03-04", "2025-03-04T10:00:00", "2025-03-04T10:00:00+02:00"} {
		_, ok := parseDate(in)
		assert.True(t, ok, in)
	}
	_, ok := parseDate("04/03/2025")
	assert.False(t, ok)
}

func TestVerifyAcceptsOwnReport(t *testing.T) {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out, err := Run([]byte(signupJSON), []byte(signupResponse), date)
	require.NoError(t, err)

	ok, err := Verify([]byte(signupJSON), []byte(signupResponse), out)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same content, different formatting.
	var pretty map[string]any
	require.NoError(t, json.Unmarshal(out, &pretty))
	indented, err := json.MarshalIndent(pretty, "", "  ")
	require.NoError(t, err)
	ok, err = Verify([]byte(signupJSON), []byte(signupResponse), indented)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyKeepsSubSecondDates(t *testing.T) {
	// Half a second after expires_at.
	date := time.Date(2025, 12, 31, 23, 59, 59, 500_000_000, time.UTC)
	out, err := Run([]byte(signupJSON), []byte(signupResponse), date)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(out, &report))
	assert.Equal(t, StatusClosed, report.Status)
	assert.Equal(t, "2025-12-31T23:59:59.5Z", report.EffectiveDate)

	ok, err := Verify([]byte(signupJSON), []byte(signupResponse), out)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyDetectsTampering(t *testing.T) {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out, err := Run([]byte(signupJSON), []byte(signupResponse), date)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(out, &report))
	report.Status = StatusReady
	report.Valid = true
	tampered, err := json.Marshal(&report)
	require.NoError(t, err)

	ok, err := Verify([]byte(signupJSON), []byte(signupResponse), tampered)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrReportMismatch)

	// A different response no longer matches the original report.
	ok, err = Verify([]byte(signupJSON), []byte(`{"email": "ada@example.org", "country": "CA", "age": 30}`), out)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrReportMismatch)
}

func TestVerifyNeedsEffectiveDate(t *testing.T) {
	ok, err := Verify([]byte(signupJSON), []byte(signupResponse), []byte(`{"status": "READY", "fields": []}`))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRunRejectsBadInput(t *testing.T) {
	_, err := Run([]byte(`{"fields": [{"id": "a"}, {"id": "a"}]}`), []byte(`{}`), time.Now())
	assert.ErrorIs(t, err, ErrDuplicateField)

	_, err = Run([]byte(signupJSON), []byte(`[]`), time.Now())
	assert.ErrorIs(t, err, ErrInvalidInput)
}
