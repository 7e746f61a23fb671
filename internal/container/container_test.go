package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuleva/camt-reconciler/internal/config"
	"tuleva/camt-reconciler/internal/coordinator"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/source"
)

const statement = `<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.053.001.02">
  <BkToCstmrStmt>
    <GrpHdr><MsgId>M-CONTAINER</MsgId><CreDtTm>2023-01-15T10:00:00+02:00</CreDtTm></GrpHdr>
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
    account: EE382200221020145685
    amount: "100.00"
    currency: EUR
    reference: "37605030299"
    created_at: 2023-01-01T00:00:00Z
    status: PENDING
`

// testConfig writes a config file pointing every resource into a temp dir
func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	contributionsFile := filepath.Join(dir, "contributions.yaml")
	require.NoError(t, os.WriteFile(contributionsFile, []byte(contributions), 0600))

	configFile := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
database:
  driver: sqlite
  dsn: %q
reconciliation:
  instance_id: test-instance
source:
  directory: %q
  retry_max_attempts: 1
contributions:
  file: %q
`, filepath.Join(dir, "recon.db"), filepath.Join(dir, "messages"), contributionsFile)
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0600))

	cfg, err := config.Load(configFile)
	require.NoError(t, err)
	return cfg, dir
}

func TestNewContainer_NilConfig(t *testing.T) {
	_, err := NewContainer(nil)
	assert.EqualError(t, err, "configuration cannot be nil")

	cfg, _ := testConfig(t)
	_, err = NewContainerWithLogger(cfg, nil)
	assert.EqualError(t, err, "logger cannot be nil")
}

func TestNewContainer_WiresDependencies(t *testing.T) {
	cfg, _ := testConfig(t)
	logger := logging.NewMockLogger()

	c, err := NewContainerWithLogger(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Same(t, cfg, c.GetConfig())
	assert.Equal(t, logger, c.GetLogger())
	assert.NotNil(t, c.GetRepository())
	assert.NotNil(t, c.GetContributionStore())
	assert.NotNil(t, c.GetSource())
	assert.NotNil(t, c.GetCodec())
	assert.NotNil(t, c.GetNormalizer())
	assert.NotNil(t, c.GetCoordinator())
	assert.NotNil(t, c.GetReportGenerator())
	assert.True(t, logger.HasEntry("INFO", "Container initialized successfully"))

	require.NoError(t, c.GetRepository().Ping(context.Background()))
}

func TestNewContainer_UnsupportedDriver(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Database.Driver = "mysql"

	_, err := NewContainerWithLogger(cfg, logging.NewMockLogger())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestContainer_RunsReconciliationEndToEnd(t *testing.T) {
	cfg, dir := testConfig(t)
	c, err := NewContainerWithLogger(cfg, logging.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	inbox := filepath.Join(dir, "messages", source.InboxDir)
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "m1.xml"), []byte(statement), 0600))

	summary, err := c.GetCoordinator().RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.RunCompleted, summary.Status)
	require.Len(t, summary.Statements, 1)
	assert.Equal(t, 1, summary.Statements[0].Matched)

	all, err := c.GetContributionStore().All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.ContributionMatched, all[0].Status)

	_, err = os.Stat(filepath.Join(dir, "messages", source.ProcessedDir, "m1.xml"))
	assert.NoError(t, err, "statement is acknowledged")

	outcomes, err := c.GetRepository().OutcomesByMessage(context.Background(), "M-CONTAINER")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "c1", outcomes[0].ContributionID)
}
