package run

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuleva/camt-reconciler/cmd/common"
	"tuleva/camt-reconciler/cmd/root"
	"tuleva/camt-reconciler/internal/coordinator"
	"tuleva/camt-reconciler/internal/source"
)

const statement = `<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.053.001.02">
  <BkToCstmrStmt>
    <GrpHdr><MsgId>M-RUN</MsgId><CreDtTm>2023-01-15T10:00:00+02:00</CreDtTm></GrpHdr>
    <Stmt>
      <Id>STMT-1</Id>
      <Acct><Id><IBAN>EE382200221020145685</IBAN></Id><Ccy>EUR</Ccy></Acct>
      <Ntry>
        <NtryRef>REF-1</NtryRef>
        <Amt Ccy="EUR">100.00</Amt>
        <CdtDbtInd>CRDT</CdtDbtInd>
        <Sts>BOOK</Sts>
        <BookgDt><Dt>2023-01-15</Dt></BookgDt>
        <ValDt><Dt>2023-01-15</Dt></ValDt>
        <NtryDtls><TxDtls><RmtInf><Ustrd>Pension 37605030299</Ustrd></RmtInf></TxDtls></NtryDtls>
      </Ntry>
    </Stmt>
  </BkToCstmrStmt>
</Document>`

const contributions = `contributions:
  - id: c1
    member_id: m1
    amount: "100.00"
    currency: EUR
    reference: "37605030299"
    created_at: 2023-01-01T00:00:00Z
    status: PENDING
`

var setup sync.Once

// writeConfig creates a config file with every resource inside a temp dir
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	contributionsFile := filepath.Join(dir, "contributions.yaml")
	require.NoError(t, os.WriteFile(contributionsFile, []byte(contributions), 0600))

	configFile := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("database:\n  dsn: %q\nsource:\n  directory: %q\n  retry_max_attempts: 1\ncontributions:\n  file: %q\n",
		filepath.Join(dir, "recon.db"), filepath.Join(dir, "messages"), contributionsFile)
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0600))
	return configFile, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	setup.Do(func() {
		root.Init()
		root.Cmd.AddCommand(Cmd)
	})
	root.SharedFlags = root.CommonFlags{}
	format = ""

	var out bytes.Buffer
	root.Cmd.SetOut(&out)
	root.Cmd.SetErr(io.Discard)
	root.Cmd.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func dropMessage(t *testing.T, dir, name, content string) {
	t.Helper()
	inbox := filepath.Join(dir, "messages", source.InboxDir)
	require.NoError(t, os.MkdirAll(inbox, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, name), []byte(content), 0600))
}

func TestRunCommand_MatchesStatement(t *testing.T) {
	configFile, dir := writeConfig(t)
	dropMessage(t, dir, "m1.xml", statement)

	out, err := execute(t, "run", "--config", configFile, "--format", "json")
	require.NoError(t, err)

	var summary coordinator.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, coordinator.RunCompleted, summary.Status)
	require.Len(t, summary.Statements, 1)
	assert.Equal(t, "M-RUN", summary.Statements[0].MessageID)
	assert.Equal(t, 1, summary.Statements[0].Matched)

	assert.FileExists(t, filepath.Join(dir, "messages", source.ProcessedDir, "m1.xml"))

	content, err := os.ReadFile(filepath.Join(dir, "contributions.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "status: MATCHED")
}

func TestRunCommand_WritesOutputFile(t *testing.T) {
	configFile, dir := writeConfig(t)
	output := filepath.Join(dir, "reports", "summary.csv")

	out, err := execute(t, "run", "--config", configFile, "--format", "csv", "-o", output)
	require.NoError(t, err)
	assert.Empty(t, out)

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(content), "envelope_id,message_id,content_hash,status")
}

func TestRunCommand_MalformedMessageIsPartial(t *testing.T) {
	configFile, dir := writeConfig(t)
	dropMessage(t, dir, "broken.xml", "<Document><unclosed>")

	out, err := execute(t, "run", "--config", configFile)
	require.ErrorIs(t, err, common.ErrPartialRun)
	assert.Contains(t, out, "MALFORMED")
	assert.FileExists(t, filepath.Join(dir, "messages", source.FailedDir, "broken.xml"))
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "error reading config file")
}
