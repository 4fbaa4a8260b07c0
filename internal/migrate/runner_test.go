package migrate

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/propgroups/internal/ledger"
	"github.com/roach88/propgroups/internal/manifest"
)

// recordingExecutor records statements and fails on the statement in failOn.
type recordingExecutor struct {
	executed []string
	failOn   string
}

func (e *recordingExecutor) Exec(_ context.Context, statement string) error {
	if statement == e.failOn {
		return errors.New("server rejected statement")
	}
	e.executed = append(e.executed, statement)
	return nil
}

func createTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testTime }

func testPlan() []manifest.Planned {
	return []manifest.Planned{
		{Name: "0075_groups", Order: 75, Statements: []string{"stmt-a", "stmt-b", "stmt-c"}},
		{Name: "0076_drop", Order: 76, Statements: []string{"stmt-d"}},
	}
}

func TestApply_ExecutesInOrderAndRecords(t *testing.T) {
	ctx := context.Background()
	l := createTestLedger(t)
	exec := &recordingExecutor{}

	r := NewRunner(exec, l, WithRunIDGenerator(NewFixedGenerator("run-1")), WithNow(fixedNow))
	summary, err := r.Apply(ctx, testPlan())
	require.NoError(t, err)

	assert.Equal(t, Summary{RunID: "run-1", Applied: 4}, summary)
	assert.Equal(t, []string{"stmt-a", "stmt-b", "stmt-c", "stmt-d"}, exec.executed)

	entries, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "0075_groups", entries[0].Migration)
	assert.Equal(t, 2, entries[2].Ordinal)
	assert.Equal(t, "0076_drop", entries[3].Migration)
	assert.Equal(t, 0, entries[3].Ordinal)
	for _, e := range entries {
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, ledger.StatementID(e.Migration, e.Ordinal, e.Statement), e.ID)
	}

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, 4, runs[0].Applied)
}

func TestApply_SkipsAppliedStatements(t *testing.T) {
	ctx := context.Background()
	l := createTestLedger(t)

	first := &recordingExecutor{}
	_, err := NewRunner(first, l, WithRunIDGenerator(NewFixedGenerator("run-1")), WithNow(fixedNow)).
		Apply(ctx, testPlan()[:1])
	require.NoError(t, err)

	second := &recordingExecutor{}
	summary, err := NewRunner(second, l, WithRunIDGenerator(NewFixedGenerator("run-2")), WithNow(fixedNow)).
		Apply(ctx, testPlan())
	require.NoError(t, err)

	assert.Equal(t, Summary{RunID: "run-2", Applied: 1, Skipped: 3}, summary)
	assert.Equal(t, []string{"stmt-d"}, second.executed)
}

func TestApply_StopsOnFirstFailure(t *testing.T) {
	ctx := context.Background()
	l := createTestLedger(t)
	exec := &recordingExecutor{failOn: "stmt-b"}

	r := NewRunner(exec, l, WithRunIDGenerator(NewFixedGenerator("run-1")), WithNow(fixedNow))
	summary, err := r.Apply(ctx, testPlan())
	require.Error(t, err)

	var stmtErr *StatementError
	require.True(t, errors.As(err, &stmtErr))
	assert.Equal(t, "0075_groups", stmtErr.Migration)
	assert.Equal(t, 1, stmtErr.Ordinal)
	assert.Equal(t, "stmt-b", stmtErr.Statement)
	assert.Contains(t, err.Error(), "server rejected statement")

	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, []string{"stmt-a"}, exec.executed)

	entries, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "server rejected statement")
}

func TestApply_ResumesAfterFailure(t *testing.T) {
	ctx := context.Background()
	l := createTestLedger(t)

	_, err := NewRunner(&recordingExecutor{failOn: "stmt-c"}, l,
		WithRunIDGenerator(NewFixedGenerator("run-1")), WithNow(fixedNow)).Apply(ctx, testPlan())
	require.Error(t, err)

	exec := &recordingExecutor{}
	summary, err := NewRunner(exec, l,
		WithRunIDGenerator(NewFixedGenerator("run-2")), WithNow(fixedNow)).Apply(ctx, testPlan())
	require.NoError(t, err)

	assert.Equal(t, []string{"stmt-c", "stmt-d"}, exec.executed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 2, summary.Applied)
}

func TestApply_CancelledContext(t *testing.T) {
	l := createTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())

	exec := ExecutorFunc(func(_ context.Context, statement string) error {
		if statement == "stmt-a" {
			cancel()
		}
		return nil
	})

	summary, err := NewRunner(exec, l,
		WithRunIDGenerator(NewFixedGenerator("run-1")), WithNow(fixedNow)).Apply(ctx, testPlan())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Applied)

	// Outcome recorded despite cancellation
	runs, err := l.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.RunStatusFailed, runs[0].Status)
}

func TestApply_DryRun(t *testing.T) {
	var buf bytes.Buffer

	r := NewRunner(WriterExecutor{W: &buf}, nil, WithRunIDGenerator(NewFixedGenerator("dry")))
	summary, err := r.Apply(context.Background(), testPlan())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Applied)
	assert.Equal(t, "stmt-a;\nstmt-b;\nstmt-c;\nstmt-d;\n", buf.String())
}

func TestApply_Empty(t *testing.T) {
	l := createTestLedger(t)
	summary, err := NewRunner(&recordingExecutor{}, l,
		WithRunIDGenerator(NewFixedGenerator("run-1")), WithNow(fixedNow)).Apply(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{RunID: "run-1"}, summary)
}

func TestFixedGenerator_Exhausted(t *testing.T) {
	g := NewFixedGenerator("a")
	assert.Equal(t, "a", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14])
}

func TestApply_ReadOnlyLedger(t *testing.T) {
	ctx := context.Background()
	l := createTestLedger(t)

	_, err := NewRunner(&recordingExecutor{}, l,
		WithRunIDGenerator(NewFixedGenerator("run-1")), WithNow(fixedNow)).Apply(ctx, testPlan()[:1])
	require.NoError(t, err)

	var buf bytes.Buffer
	summary, err := NewRunner(WriterExecutor{W: &buf}, l, WithReadOnlyLedger(),
		WithRunIDGenerator(NewFixedGenerator("dry"))).Apply(ctx, testPlan())
	require.NoError(t, err)

	assert.Equal(t, "stmt-d;\n", buf.String())
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 1, summary.Applied)

	// Nothing new recorded
	entries, err := l.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
