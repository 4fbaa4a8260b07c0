package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/propgroups/internal/migrate"
)

var testManifests = filepath.Join("testdata", "migrations")

func assertGolden(t *testing.T, name, output string) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(output))
}

func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	if data != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return resp
}

// fakeExecutor records statements and rejects failOn.
type fakeExecutor struct {
	executed []string
	failOn   string
}

func (e *fakeExecutor) Exec(_ context.Context, statement string) error {
	if statement == e.failOn {
		return errors.New("code: 44, Cannot add column")
	}
	e.executed = append(e.executed, statement)
	return nil
}

type fakeLister map[string][]string

func (l fakeLister) Columns(_ context.Context, table string) ([]string, error) {
	return l[table], nil
}

func runTestMigrate(t *testing.T, opts *MigrateOptions) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewMigrateCommand(opts.RootOptions)
	cmd.SetOut(buf)
	err := runMigrate(opts, testManifests, cmd)
	return buf.String(), err
}

func TestGroups(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "groups")
	require.NoError(t, err)
	assert.Contains(t, out, "sharded_events:")
	assert.Contains(t, out, "column:     properties_group_custom")
	assert.Contains(t, out, "expression: key like '$feature/%'")
	assert.Contains(t, out, "codec:      ZSTD(1)")
}

func TestGroups_JSON(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "--format", "json", "groups", "sharded_events")
	require.NoError(t, err)

	var groups []GroupInfo
	resp := decodeResponse(t, out, &groups)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, groups, 2)
	assert.Equal(t, "custom", groups[0].Name)
	assert.Equal(t, "properties_group_feature_flags", groups[1].Column)
}

func TestGroups_UnknownTable(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "groups", "persons")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E021")
}

func TestClassify(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "--format", "json",
		"classify", "$feature/new-onboarding", "plan_tier", "$browser", "utm_source")
	require.NoError(t, err)

	var results []Classification
	decodeResponse(t, out, &results)
	require.Len(t, results, 4)
	assert.Equal(t, []string{"feature_flags"}, results[0].Groups)
	assert.Equal(t, []string{"custom"}, results[1].Groups)
	assert.Empty(t, results[2].Groups)
	assert.Empty(t, results[3].Groups)
}

func TestClassify_Text(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "classify", "plan_tier", "$os")
	require.NoError(t, err)
	assert.Equal(t, "plan_tier: custom\n$os: (none)\n", out)
}

func TestStatements_Golden(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "statements_custom", args: []string{"statements", "sharded_events", "custom"}},
		{name: "statements_feature_flags_drop", args: []string{"statements", "sharded_events", "feature_flags", "--drop"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := executeCommand(t, append([]string{"-c", testConfig}, tc.args...)...)
			require.NoError(t, err)
			assertGolden(t, tc.name, out)
		})
	}
}

func TestStatements_JSON(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "--format", "json", "statements", "sharded_events", "feature_flags")
	require.NoError(t, err)

	var result StatementsResult
	decodeResponse(t, out, &result)
	assert.Equal(t, "create", result.Action)
	require.Len(t, result.Statements, 3)
	assert.True(t, strings.HasSuffix(result.Statements[1], "properties_group_feature_flags_keys_bf mapKeys(properties_group_feature_flags) TYPE bloom_filter"))
}

func TestStatements_UnknownGroup(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "--format", "json", "statements", "sharded_events", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "nope")
}

func TestConform(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "conform", "--key", "$feature/x", "--key", "Token")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ sharded_events.custom")
	assert.Contains(t, out, "✓ sharded_events.feature_flags")
}

func TestConform_JSON(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "--format", "json", "conform")
	require.NoError(t, err)

	var results []ConformResult
	decodeResponse(t, out, &results)
	require.Len(t, results, 1)
	require.Len(t, results[0].Reports, 2)
	for _, r := range results[0].Reports {
		assert.True(t, r.OK())
		assert.Positive(t, r.Checked)
	}
}

func TestPlan_Golden(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "plan", testManifests)
	require.NoError(t, err)
	assertGolden(t, "plan", out)
}

func TestPlan_MissingDir(t *testing.T) {
	out, err := executeCommand(t, "-c", testConfig, "plan", "/nonexistent/manifests")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E005")
	assert.Contains(t, out, "not found")
}

func TestPlan_UnknownTable(t *testing.T) {
	config := filepath.Join(t.TempDir(), "persons.yaml")
	require.NoError(t, writeFile(config, "tables:\n  - {name: sharded_persons, column: properties}\n"))

	out, err := executeCommand(t, "-c", config, "plan", testManifests)
	require.Error(t, err)
	assert.Contains(t, out, ErrCodePlan)
}

func TestMigrate_AppliesAndResumes(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	rootOpts := &RootOptions{Format: "json", Config: configPath}

	exec := &fakeExecutor{}
	out, err := runTestMigrate(t, &MigrateOptions{
		RootOptions: rootOpts,
		Executor:    exec,
		RunIDs:      migrate.NewFixedGenerator("run-1"),
	})
	require.NoError(t, err)
	assert.Len(t, exec.executed, 9)

	var result MigrateResult
	decodeResponse(t, out, &result)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 9, result.Applied)
	assert.Equal(t, 0, result.Skipped)

	again := &fakeExecutor{}
	out, err = runTestMigrate(t, &MigrateOptions{
		RootOptions: rootOpts,
		Executor:    again,
		RunIDs:      migrate.NewFixedGenerator("run-2"),
	})
	require.NoError(t, err)
	assert.Empty(t, again.executed)
	decodeResponse(t, out, &result)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 9, result.Skipped)
}

func TestMigrate_StatementRejected(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	rootOpts := &RootOptions{Format: "json", Config: configPath}

	registries := mustRegistries(t, configPath)
	flags, err := registries["sharded_events"].AlterTableStatements("feature_flags")
	require.NoError(t, err)

	exec := &fakeExecutor{failOn: flags[0]}
	out, err := runTestMigrate(t, &MigrateOptions{
		RootOptions: rootOpts,
		Executor:    exec,
		RunIDs:      migrate.NewFixedGenerator("run-1"),
	})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Len(t, exec.executed, 3)

	var result MigrateResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMigrate, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "Cannot add column")
	assert.Equal(t, 3, result.Applied)

	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "0075_add_custom_and_features_property_groups_events", details["migration"])
	assert.Equal(t, float64(3), details["ordinal"])
}

func TestMigrate_DryRun(t *testing.T) {
	configPath, ledgerPath := writeTestConfig(t)

	// Nothing applied yet: every statement is pending, and no ledger is created.
	out, err := runTestMigrate(t, &MigrateOptions{
		RootOptions: &RootOptions{Format: "text", Config: configPath},
		DryRun:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 9, strings.Count(out, ";\n"))
	assert.Contains(t, out, "-- 9 pending, 0 already applied")
	assert.NoFileExists(t, ledgerPath)

	_, err = runTestMigrate(t, &MigrateOptions{
		RootOptions: &RootOptions{Format: "text", Config: configPath},
		Executor:    &fakeExecutor{},
	})
	require.NoError(t, err)

	out, err = runTestMigrate(t, &MigrateOptions{
		RootOptions: &RootOptions{Format: "json", Config: configPath},
		DryRun:      true,
	})
	require.NoError(t, err)
	var result MigrateResult
	decodeResponse(t, out, &result)
	assert.True(t, result.DryRun)
	assert.Empty(t, result.Statements)
	assert.Equal(t, 9, result.Skipped)
}

func TestStatus(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	// Fail partway so one migration is partially applied.
	registries := mustRegistries(t, configPath)
	drop, err := registries["sharded_events"].DropTableStatements("feature_flags")
	require.NoError(t, err)
	_, err = runTestMigrate(t, &MigrateOptions{
		RootOptions: &RootOptions{Format: "json", Config: configPath},
		Executor:    &fakeExecutor{failOn: drop[1]},
		RunIDs:      migrate.NewFixedGenerator("run-1"),
	})
	require.Error(t, err)

	buf := &bytes.Buffer{}
	opts := &StatusOptions{
		RootOptions: &RootOptions{Format: "json", Config: configPath},
		Manifests:   testManifests,
		Columns:     true,
		Lister: fakeLister{
			"sharded_events": {"uuid", "properties", "properties_group_custom"},
		},
	}
	cmd := NewStatusCommand(opts.RootOptions)
	cmd.SetOut(buf)
	require.NoError(t, runStatus(opts, cmd))

	var result StatusResult
	decodeResponse(t, buf.String(), &result)
	assert.Equal(t, 7, result.Statements)

	require.Len(t, result.Runs, 1)
	assert.Equal(t, "run-1", result.Runs[0].RunID)
	assert.Equal(t, "failed", result.Runs[0].Status)

	require.Len(t, result.Migrations, 2)
	assert.False(t, result.Migrations[0].Pending())
	assert.Equal(t, 6, result.Migrations[0].Applied)
	assert.True(t, result.Migrations[1].Pending())
	assert.Equal(t, 1, result.Migrations[1].Applied)
	assert.Equal(t, 3, result.Migrations[1].Total)

	require.Len(t, result.Columns, 2)
	assert.True(t, result.Columns[0].Present)
	assert.False(t, result.Columns[1].Present)
}

func TestStatus_NoLedger(t *testing.T) {
	configPath, ledgerPath := writeTestConfig(t)

	out, err := executeCommand(t, "-c", configPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "(0 statement(s) applied)")
	assert.NoFileExists(t, ledgerPath)
}
