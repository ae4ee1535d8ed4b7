package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, configDir string, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", configDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func chainCSV(dataDate string) string {
	var b strings.Builder
	b.WriteString("expiration,data_date,type,strike,open_interest,volume,iv,delta,gamma,underlying_price\n")
	for _, exp := range []string{"2024-03-15", "2024-04-19"} {
		for strike := 490; strike <= 510; strike += 5 {
			fmt.Fprintf(&b, "%s,%s,call,%d,%d,%d,0.18,0.5,0.02,500\n", exp, dataDate, strike, 1000+strike, 100)
			fmt.Fprintf(&b, "%s,%s,put,%d,%d,%d,0.2,-0.5,0.02,500\n", exp, dataDate, strike, 800+strike, 80)
		}
	}
	return b.String()
}

func TestCLIImportComputeReport(t *testing.T) {
	dir := t.TempDir()

	chainFile := filepath.Join(dir, "spy.csv")
	require.NoError(t, os.WriteFile(chainFile, []byte(chainCSV("2024-03-07")+strings.SplitN(chainCSV("2024-03-08"), "\n", 2)[1]), 0644))

	out, err := runCLI(t, dir, "", "import", "observations", "--symbol", "spy", "--file", chainFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Imported 40 observations for 1 symbol(s)")

	closes := `[{"date": "2024-03-07", "close": 498.5}, {"date": "2024-03-08", "close": 500}]`
	out, err = runCLI(t, dir, closes, "import", "closes", "--symbol", "SPY")
	require.NoError(t, err, out)

	out, err = runCLI(t, dir, "", "--json", "compute", "--date", "2024-03-08")
	require.NoError(t, err, out)
	var report struct {
		AsOf     string            `json:"as_of"`
		Computed []string          `json:"computed"`
		Failed   map[string]string `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "2024-03-08", report.AsOf)
	assert.Equal(t, []string{"SPY"}, report.Computed)
	assert.Empty(t, report.Failed)

	out, err = runCLI(t, dir, "", "--json", "report", "spy")
	require.NoError(t, err, out)
	var stored map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &stored))
	assert.JSONEq(t, `"SPY"`, string(stored["symbol"]))
	assert.JSONEq(t, `"2024-03-08"`, string(stored["data_date"]))
	assert.Contains(t, stored, "vol_metrics")

	out, err = runCLI(t, dir, "", "--json", "gex", "SPY", "--date", "2024-03-08", "--timeframe", "90d")
	require.NoError(t, err, out)
	var gexOut map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &gexOut))
	assert.Equal(t, "90d", gexOut["timeframe"])
	assert.Equal(t, "2024-03-08", gexOut["data_date"])

	out, err = runCLI(t, dir, "", "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "observations: fresh")
	assert.Contains(t, out, "SPY")
}

func TestCLIImportRejectsInvalidRows(t *testing.T) {
	dir := t.TempDir()
	input := `[{"expiration": "2024-03-15", "data_date": "2024-03-08", "type": "call", "strike": -5}]`

	out, err := runCLI(t, dir, input, "import", "observations", "--symbol", "SPY")
	require.Error(t, err)
	assert.Contains(t, out, "rows[0].strike")
}

func TestCLIPosition(t *testing.T) {
	dir := t.TempDir()
	req := `{
		"underlying": {"symbol": "SPY", "price": 500},
		"legs": [
			{"type": "call", "side": "long", "qty": 1, "strike": 500, "expiry": "2099-01-16", "iv": 0.2},
			{"type": "call", "side": "short", "qty": 1, "strike": 520, "expiry": "2099-01-16", "iv": 0.2}
		]
	}`

	out, err := runCLI(t, dir, req, "--json", "position")
	require.NoError(t, err, out)
	var result map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.JSONEq(t, `"SPY"`, string(result["symbol"]))
	assert.Contains(t, result, "payoff")

	out, err = runCLI(t, dir, `{"underlying": {"symbol": "SPY", "price": 500}, "legs": []}`, "position")
	require.Error(t, err)
	assert.Contains(t, out, "legs")
}

func TestCLIConfigCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), strings.TrimSpace(out))

	out, err = runCLI(t, dir, "", "config", "validate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Configuration is valid")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[pipeline]\nworkers = 0\n"), 0644))
	out, err = runCLI(t, dir, "", "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "pipeline.workers")

	out, err = runCLI(t, dir, "", "--json", "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}
