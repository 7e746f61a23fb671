package report

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuleva/camt-reconciler/internal/coordinator"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
)

func sampleSummary() *coordinator.RunSummary {
	start := time.Date(2023, 1, 15, 10, 0, 0, 0, time.UTC)
	return &coordinator.RunSummary{
		RunID:      "run-1",
		Status:     coordinator.RunPartial,
		State:      coordinator.StateReleased,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Fetched:    2,
		Statements: []coordinator.StatementResult{
			{EnvelopeID: "a.xml", MessageID: "M100", Status: coordinator.StatementProcessed, Matched: 2, Unmatched: 1},
			{EnvelopeID: "b.xml", Status: coordinator.StatementMalformed, Error: "malformed message: bad"},
		},
	}
}

func TestWriteSummary_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewGenerator(logging.NewMockLogger(), 0).WriteSummary(&buf, sampleSummary(), FormatText))

	out := buf.String()
	assert.Contains(t, out, "Run run-1: PARTIAL (2 fetched, 1.5s)")
	assert.Contains(t, out, "M100")
	assert.Contains(t, out, "b.xml", "envelope id is shown when the message id is unknown")
	assert.Contains(t, out, "TOTAL")
}

func TestWriteSummary_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewGenerator(logging.NewMockLogger(), ';').WriteSummary(&buf, sampleSummary(), FormatCSV))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "envelope_id;message_id;content_hash;status;matched;ambiguous;unmatched;duplicate;errored;error", lines[0])
	assert.Equal(t, "a.xml;M100;;PROCESSED;2;0;1;0;0;", lines[1])
}

func TestWriteSummary_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewGenerator(logging.NewMockLogger(), 0).WriteSummary(&buf, sampleSummary(), FormatJSON))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, "PARTIAL", decoded["status"])
	assert.Len(t, decoded["statements"], 2)
}

func TestWriteSummary_Errors(t *testing.T) {
	g := NewGenerator(logging.NewMockLogger(), 0)
	assert.Error(t, g.WriteSummary(&bytes.Buffer{}, nil, FormatText))
	assert.ErrorContains(t, g.WriteSummary(&bytes.Buffer{}, sampleSummary(), "xml"), "unsupported report format")
}

func TestWriteTransactions(t *testing.T) {
	tx := models.NormalizedTransaction{
		DedupKey:        "k1",
		MessageID:       "M100",
		EntryIndex:      1,
		AmountMinor:     10000,
		Amount:          decimal.RequireFromString("100"),
		Currency:        "EUR",
		ValueDate:       time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC),
		BookingDate:     time.Date(2023, 1, 14, 0, 0, 0, 0, time.UTC),
		Reference:       "37605030299",
		ReferenceSource: models.ReferenceUnstructured,
		Counterparty:    models.Counterparty{Name: "Jaan Tamm", IBAN: "EE471000001020145685"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewGenerator(logging.NewMockLogger(), 0).WriteTransactions(&buf, []models.NormalizedTransaction{tx}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "dedup_key,message_id,entry_index,booking_date,value_date,amount"))
	assert.Equal(t, "k1,M100,1,2023-01-14,2023-01-15,100.00,EUR,37605030299,unstructured,false,false,Jaan Tamm,EE471000001020145685,,", lines[1])
}

func TestWriteOutcomes(t *testing.T) {
	outcome := models.MatchOutcome{
		DedupKey:     "k1",
		MessageID:    "M100",
		EntryIndex:   1,
		Status:       models.MatchStatusAmbiguous,
		Reason:       models.ReasonMultipleExact,
		CandidateIDs: []string{"c1", "c2"},
		AmountMinor:  1500,
		Currency:     "JPY",
		CreatedAt:    time.Date(2023, 1, 15, 8, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, NewGenerator(logging.NewMockLogger(), 0).WriteOutcomes(&buf, []models.MatchOutcome{outcome}))
	assert.Contains(t, buf.String(), "2023-01-15T08:00:00.000Z,M100,1,k1,AMBIGUOUS,multiple-candidates,,c1 c2,1500,JPY,")
}

func TestWriteFile(t *testing.T) {
	logger := logging.NewMockLogger()
	path := filepath.Join(t.TempDir(), "nested", "summary.csv")

	err := NewGenerator(logger, 0).WriteFile(path, func(w io.Writer) error {
		_, err := w.Write([]byte("hello"))
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.True(t, logger.HasEntry("INFO", "Report written"))
}
