package integration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tuleva/camt-reconciler/internal/camtparser"
	"tuleva/camt-reconciler/internal/coordinator"
	"tuleva/camt-reconciler/internal/fileutils"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/matcher"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/normalizer"
	"tuleva/camt-reconciler/internal/persistence"
	"tuleva/camt-reconciler/internal/source"
	"tuleva/camt-reconciler/internal/store"
)

const iban = "EE382200221020145685"

var references = []string{"37605030299", "38001085718", "47101010033"}

func statementXML(msgID, reference string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.053.001.02">
  <BkToCstmrStmt>
    <GrpHdr><MsgId>%s</MsgId><CreDtTm>2023-01-15T10:00:00+02:00</CreDtTm></GrpHdr>
    <Stmt>
      <Id>STMT-%s</Id>
      <Acct><Id><IBAN>%s</IBAN></Id><Ccy>EUR</Ccy></Acct>
      <Ntry>
        <NtryRef>%s-1</NtryRef>
        <Amt Ccy="EUR">100.00</Amt>
        <CdtDbtInd>CRDT</CdtDbtInd>
        <Sts>BOOK</Sts>
        <BookgDt><Dt>2023-01-15</Dt></BookgDt>
        <ValDt><Dt>2023-01-15</Dt></ValDt>
        <NtryDtls><TxDtls><RmtInf><Ustrd>Pension %s</Ustrd></RmtInf></TxDtls></NtryDtls>
      </Ntry>
    </Stmt>
  </BkToCstmrStmt>
</Document>`, msgID, msgID, iban, msgID, reference)
}

type env struct {
	db            *gorm.DB
	repo          *persistence.Repository
	dir           *source.Directory
	contributions *store.YAMLStore
	logger        *logging.MockLogger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	logger := logging.NewMockLogger()

	db, err := persistence.Open(persistence.DriverSQLite, filepath.Join(root, "recon.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = persistence.Close(db) })

	dir, err := source.NewDirectory(filepath.Join(root, "messages"), logger)
	require.NoError(t, err)

	contributionsFile := filepath.Join(root, "contributions.yaml")
	contributions := store.NewYAMLStore(contributionsFile, logger)
	for i, ref := range references {
		require.NoError(t, appendContribution(contributionsFile, fmt.Sprintf("c%d", i+1), ref))
	}

	return &env{
		db:            db,
		repo:          persistence.NewRepository(db),
		dir:           dir,
		contributions: contributions,
		logger:        logger,
	}
}

func appendContribution(file, id, reference string) error {
	content := ""
	if fileutils.FileExists(file) {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		content = string(data)
	} else {
		content = "contributions:\n"
	}
	content += fmt.Sprintf(`  - id: %s
    member_id: m-%s
    account: %s
    amount: "100.00"
    currency: EUR
    reference: "%s"
    created_at: 2023-01-01T00:00:00Z
    status: PENDING
`, id, id, iban, reference)
	return os.WriteFile(file, []byte(content), 0600)
}

func (e *env) drop(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.dir.Root(), source.InboxDir, name), []byte(content), 0600))
}

func (e *env) coordinator(t *testing.T, owner string, src source.Source) *coordinator.Coordinator {
	t.Helper()
	norm, err := normalizer.NewWithPatterns(nil)
	require.NoError(t, err)

	c, err := coordinator.New(coordinator.Config{
		LockName: "integration",
		Matching: matcher.Config{AmountTolerance: decimal.RequireFromString("0.05")},
	}, coordinator.Dependencies{
		Codec:         camtparser.NewCodec(e.logger, []string{"001.02"}),
		Normalizer:    norm,
		Ledger:        e.repo,
		Contributions: e.contributions,
		Source:        src,
		Locks:         persistence.NewGormLocker(e.db, owner),
		Logger:        e.logger.WithField(logging.FieldComponent, owner),
	})
	require.NoError(t, err)
	return c
}

// lostAcks processes messages normally but never manages to acknowledge them
type lostAcks struct {
	source.Source
}

func (lostAcks) Acknowledge(context.Context, string, bool) error {
	return errors.New("gateway unreachable")
}

func TestMultipleInstances_ProcessEachStatementOnce(t *testing.T) {
	e := newEnv(t)
	for i, ref := range references {
		e.drop(t, fmt.Sprintf("m%d.xml", i+1), statementXML(fmt.Sprintf("M%d", i+1), ref))
	}

	instances := []*coordinator.Coordinator{
		e.coordinator(t, "instance-a", e.dir),
		e.coordinator(t, "instance-b", e.dir),
	}

	summaries := make([]*coordinator.RunSummary, len(instances))
	var wg sync.WaitGroup
	for i, c := range instances {
		wg.Add(1)
		go func(i int, c *coordinator.Coordinator) {
			defer wg.Done()
			summary, err := c.RunReconciliation(context.Background())
			assert.NoError(t, err)
			summaries[i] = summary
		}(i, c)
	}
	wg.Wait()

	matched := 0
	for _, s := range summaries {
		require.NotNil(t, s)
		assert.Contains(t, []coordinator.RunStatus{coordinator.RunCompleted, coordinator.RunSkipped}, s.Status)
		matched += s.Totals().Matched
	}
	assert.Equal(t, len(references), matched, "every entry is matched exactly once across instances")

	all, err := e.contributions.All()
	require.NoError(t, err)
	for _, c := range all {
		assert.Equal(t, models.ContributionMatched, c.Status, c.ID)
	}

	for i := range references {
		outcomes, err := e.repo.OutcomesByMessage(context.Background(), fmt.Sprintf("M%d", i+1))
		require.NoError(t, err)
		assert.Len(t, outcomes, 1)
	}

	pending, err := fileutils.ListFilesWithExtension(filepath.Join(e.dir.Root(), source.InboxDir), ".xml")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRedelivery_AfterLostAcknowledgement(t *testing.T) {
	e := newEnv(t)
	e.drop(t, "m1.xml", statementXML("M1", references[0]))

	first, err := e.coordinator(t, "instance-a", lostAcks{e.dir}).RunReconciliation(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Statements, 1)
	assert.Equal(t, coordinator.StatementProcessed, first.Statements[0].Status)
	assert.Equal(t, 1, first.Statements[0].Matched)
	assert.FileExists(t, filepath.Join(e.dir.Root(), source.InboxDir, "m1.xml"), "message is redelivered")

	second, err := e.coordinator(t, "instance-b", e.dir).RunReconciliation(context.Background())
	require.NoError(t, err)
	require.Len(t, second.Statements, 1)
	assert.Equal(t, coordinator.StatementAlreadyProcessed, second.Statements[0].Status)
	assert.Zero(t, second.Statements[0].Matched)
	assert.FileExists(t, filepath.Join(e.dir.Root(), source.ProcessedDir, "m1.xml"))

	outcomes, err := e.repo.OutcomesByMessage(context.Background(), "M1")
	require.NoError(t, err)
	assert.Len(t, outcomes, 1, "redelivery adds no outcomes")
}

func TestCorrectedStatement_DoesNotDoubleCount(t *testing.T) {
	e := newEnv(t)
	e.drop(t, "m1.xml", statementXML("M1", references[0]))

	c := e.coordinator(t, "instance-a", e.dir)
	_, err := c.RunReconciliation(context.Background())
	require.NoError(t, err)

	corrected := strings.Replace(statementXML("M1", references[0]),
		"<Id>STMT-M1</Id>", "<Id>STMT-M1</Id><ElctrncSeqNb>2</ElctrncSeqNb>", 1)
	e.drop(t, "m1-corrected.xml", corrected)

	summary, err := c.RunReconciliation(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Statements, 1)
	assert.Equal(t, coordinator.StatementProcessed, summary.Statements[0].Status)
	assert.Equal(t, 1, summary.Statements[0].Duplicate)
	assert.Zero(t, summary.Statements[0].Matched)
}
