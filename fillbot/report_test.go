package fillbot

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	r := NewReport("https://example.com/form")
	r.Add(FillOutcome{Field: FormField{Label: "Name", Kind: KindText}, Status: StatusFilled, MatchedKey: "full name", Confidence: 0.91, Attempts: 1})
	r.Add(FillOutcome{Field: FormField{Label: "Colour", Kind: KindText, Required: true}, Status: StatusSkipped, Reason: "no match (best 0.12)"})
	r.Add(FillOutcome{Field: FormField{Label: "Size", Kind: KindDropdown, Required: true}, Status: StatusFailed, Reason: "no matching option"})
	r.Finish()
	return r
}

func TestReport_Counts(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, 3, r.Total())
	assert.Equal(t, 1, r.Filled)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1, r.Failed)
	assert.False(t, r.FinishedAt.Before(r.StartedAt))

	req := r.RequiredSkipped()
	require.Len(t, req, 2)
	assert.Equal(t, "Colour", req[0].Field.Label)
	assert.Equal(t, "Size", req[1].Field.Label)
}

func TestReport_Print(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Print(&buf))
	out := buf.String()
	assert.Contains(t, out, "full name")
	assert.Contains(t, out, "0.91")
	assert.Contains(t, out, "filled 1, skipped 1, failed 1 of 3 fields")
	assert.Contains(t, out, "required fields needing attention")
	assert.Contains(t, out, "submit it manually")
}

func TestReport_WriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	r := sampleReport()
	require.NoError(t, r.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r.RunID, decoded.RunID)
	assert.Equal(t, r.URL, decoded.URL)
	assert.Len(t, decoded.Outcomes, 3)
	assert.Equal(t, StatusFailed, decoded.Outcomes[2].Status)
}
