package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morezero/domain-controller/pkg/coordination"
	"github.com/morezero/domain-controller/pkg/pipeline"
)

const mainTestPrefix = "cmd/domain-controller:main_test"

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "ensure-db", "clear", "seed", "resolve"} {
		if !names[want] {
			t.Errorf("%s - missing command %q", mainTestPrefix, want)
		}
	}

	sub := map[string]bool{}
	for _, c := range migrateCmd.Commands() {
		sub[c.Name()] = true
	}
	for _, want := range []string{"up", "down", "status"} {
		if !sub[want] {
			t.Errorf("%s - missing migrate subcommand %q", mainTestPrefix, want)
		}
	}
}

func TestWithDatabaseName(t *testing.T) {
	got, err := withDatabaseName("postgres://u:p@db:5432/prod?sslmode=disable", "dc_test")
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@db:5432/dc_test?sslmode=disable", got)
}

const domainYAML = `
server-group:
  main:
    profile: default
host:
  master:
    server-config:
      one:
        group: main
      two:
        group: main
`

func runResolve(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs(append([]string{"resolve"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		resolveOpFile = ""
	})
	return out, rootCmd.Execute()
}

func TestResolveCommand(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "domain.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(domainYAML), 0o600))

	out, err := runResolve(t, "--model", modelPath,
		`{"operation":"add","address":[{"system-property":"tier"}],"value":"gold"}`)
	require.NoError(t, err)

	var result struct {
		Outcome string                     `json:"outcome"`
		Result  coordination.OverallResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Equal(t, pipeline.OutcomeSuccess, result.Outcome)
	require.Len(t, result.Result.ServerOperations, 1)
	require.Len(t, result.Result.ServerOperations[0].Servers, 2)
}

func TestResolveCommand_OpFile(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "domain.yaml")
	opPath := filepath.Join(dir, "op.json")
	require.NoError(t, os.WriteFile(modelPath, []byte(domainYAML), 0o600))
	require.NoError(t, os.WriteFile(opPath, []byte(`{"operation":"remove","address":[{"server-group":"missing"}]}`), 0o600))

	out, err := runResolve(t, "--model", modelPath, "--op-file", opPath)
	require.NoError(t, err)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Equal(t, pipeline.OutcomeFailed, result.Outcome)
	require.Contains(t, result.FailureDescription, "not found")
}

func TestResolveCommand_RequiresOperation(t *testing.T) {
	_, err := runResolve(t, "--model", filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
}
