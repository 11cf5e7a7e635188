package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Greggwolin/landscape-sub003/internal/adapters/http/api"
	service "github.com/Greggwolin/landscape-sub003/internal/app"
	"github.com/Greggwolin/landscape-sub003/internal/scenario"
)

const residualScenario = `
name: residual
input:
  tiers:
    - {tierNumber: 1, tierName: Residual, hurdleType: null, lpSplitPct: 90, gpSplitPct: 10}
  periods:
    - {periodIndex: 0, date: 2024-01-31, cashFlow: 100}
    - {periodIndex: 1, date: 2024-02-29, cashFlow: 100}
    - {periodIndex: 2, date: 2024-03-31, cashFlow: 100}
  contributions:
    - {partnerType: LP, amount: 300, periodIndex: 0}
  gpContributionPct: 0
  peakEquity: 300
`

const cashFlowsOnly = `
input:
  tiers: []
  periods:
    - {periodIndex: 0, cashFlow: -1000}
    - {periodIndex: 1, cashFlow: 500}
    - {periodIndex: 2, cashFlow: 800}
  contributions: []
  gpContributionPct: 0
  peakEquity: 1000
`

func writeScenario(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// execute runs the root command with fresh flag values and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	runGranularity, runXLSXDir, runVerify, runJSON = "", "", false, false
	verifyGenerate, verifySeed, verifySaveDir = 0, 1, ""
	napkinPromotes, napkinCashFlows, napkinOutputYAML = nil, "", false
	napkinGPContrib, napkinResidual = "0", "0"
	logFormat, logLevel = "", ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "verify", "submit", "napkin"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "waterfallctl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("log-format"))
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"granularity", "xlsx-dir", "verify", "json"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s", name)
	}
	flag := submitCmd.Flags().Lookup("url")
	require.NotNil(t, flag)
	assert.Equal(t, "http://localhost:8080", flag.DefValue)
}

func TestRunCommand_VerifiesAndExports(t *testing.T) {
	path := writeScenario(t, "residual.yaml", residualScenario)
	dir := filepath.Join(t.TempDir(), "books")

	out, err := execute(t, "--log-level", "warn", "run", path, "--verify", "--xlsx-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "residual")
	assert.Contains(t, out, "300.00")
	assert.Contains(t, out, "ok    residual")

	info, err := os.Stat(filepath.Join(dir, "residual.xlsx"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRunCommand_JSONAtAnnualGranularity(t *testing.T) {
	path := writeScenario(t, "residual.yaml", residualScenario)

	out, err := execute(t, "run", path, "--json", "--granularity", "annual")
	require.NoError(t, err)
	assert.Contains(t, out, `"periodDistributions"`)
	assert.Contains(t, out, `"mode": "irr"`)
}

func TestRunCommand_Errors(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeScenario(t, "residual.yaml", residualScenario)
	_, err = execute(t, "run", path, "--granularity", "weekly")
	assert.Error(t, err)

	bad := writeScenario(t, "bad.yaml", `
input:
  tiers: [{tierNumber: 1, tierName: R, hurdleType: null, lpSplitPct: 90, gpSplitPct: 20}]
  periods: [{periodIndex: 0, cashFlow: 10}]
`)
	_, err = execute(t, "run", bad)
	assert.ErrorIs(t, err, errScenariosFailed)
}

func TestVerifyCommand_Generated(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "generated")

	out, err := execute(t, "verify", "--generate", "8", "--seed", "11", "--save-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "8 scenarios, 0 failed")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 8)

	// saved deals load back as scenarios
	sc, err := scenario.Load(filepath.Join(dir, "gen-0.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gen-0", sc.Name)

	_, err = execute(t, "verify")
	assert.Error(t, err)
}

func TestNapkinCommand(t *testing.T) {
	out, err := execute(t, "napkin", "--pref", "8", "--gp-contribution", "10", "--promote", "12:20", "--residual-promote", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "residual")
	assert.Contains(t, out, "IRR")

	out, err = execute(t, "napkin", "--pref", "8", "--promote", "12:20", "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "tiers:")
	assert.Contains(t, out, "hurdleType: IRR")

	path := writeScenario(t, "flows.yaml", cashFlowsOnly)
	out, err = execute(t, "napkin", "--pref", "8", "--promote", "12:20", "--residual-promote", "30", "--cashflows", path)
	require.NoError(t, err)
	assert.Contains(t, out, "flows")

	_, err = execute(t, "napkin", "--pref", "8", "--promote", "12")
	assert.Error(t, err)
}

func TestSubmitCommand(t *testing.T) {
	ctx := context.Background()
	cfgPath := writeScenario(t, "residual.yaml", residualScenario)

	// the service is built after the logger exists
	_, err := execute(t, "napkin", "--pref", "8")
	require.NoError(t, err)
	svc := service.New()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()
	ts := httptest.NewServer(api.NewServer(svc).Routes())
	defer ts.Close()

	out, err := execute(t, "submit", "--url", ts.URL, cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "residual")
	assert.Contains(t, out, "300.00")
}
