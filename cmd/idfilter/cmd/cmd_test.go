package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const scenarioTSV = "source_group\tsource\tnative_id\tcharge\tqvalue\tsequence\tmodifications\tproteins\n" +
	"/\trun1.mzML\tscan=1\t2\t0.01\tPEPTIDEK\t\tPROT1:0\n" +
	"/\trun1.mzML\tscan=2\t2\t0.01\tELVISK\t\tPROT1:8;PROT2:0\n" +
	"/\trun1.mzML\tscan=3\t2\t0.01\tLIVESK\t\tPROT1:14;PROT2:6\n" +
	"/\trun1.mzML\tscan=4\t2\t0.01\tMASSIVEK\tOxidation@M1\tPROT2:12\n" +
	"/\trun1.mzML\tscan=5\t2\t0.01\tSAMPLER\t\tPROT3:0\n" +
	"/\trun1.mzML\tscan=6\t2\t0.5\tFAKEK\t\tPROT1:20\n" +
	"/\trun1.mzML\tscan=7\t0\t0.01\tBROKEN\t\tPROT1:30\n"

type cliEnv struct {
	dir string
	db  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("IDFILTER_CONFIG", filepath.Join(dir, "missing.toml"))
	return &cliEnv{dir: dir, db: filepath.Join(dir, "evidence.db")}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--db", e.db, "--driver", "sqlite", "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("idfilter %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func (e *cliEnv) importScenario(t *testing.T) string {
	t.Helper()
	input := filepath.Join(e.dir, "scenario.tsv")
	if err := os.WriteFile(input, []byte(scenarioTSV), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return e.mustRun(t, "import", input)
}

func TestImportFilterReset(t *testing.T) {
	env := newCLIEnv(t)

	out := env.importScenario(t)
	if !strings.Contains(out, "Import complete!") || !strings.Contains(out, "Skipped: 1 records") {
		t.Fatalf("unexpected import output:\n%s", out)
	}

	out = env.mustRun(t, "summarize")
	if !strings.Contains(out, "Not filtered.") {
		t.Fatalf("expected unfiltered summary:\n%s", out)
	}

	filterArgs := []string{"filter", "--max-qvalue", "0.05", "--min-distinct-peptides", "1",
		"--min-spectra", "1", "--min-additional-peptides", "2"}
	out = env.mustRun(t, filterArgs...)
	if !strings.Contains(out, "Retained proteins") {
		t.Fatalf("unexpected filter output:\n%s", out)
	}

	out = env.mustRun(t, "proteins")
	if !strings.Contains(out, "PROT1") || strings.Contains(out, "PROT3") || !strings.HasSuffix(out, "1 proteins\n") {
		t.Fatalf("unexpected protein listing:\n%s", out)
	}

	out = env.mustRun(t, filterArgs...)
	if !strings.Contains(out, "Already filtered") {
		t.Fatalf("expected matching criteria to short-circuit:\n%s", out)
	}

	out = env.mustRun(t, "criteria")
	if !strings.Contains(out, "Min. additional peptides per protein") {
		t.Fatalf("unexpected criteria output:\n%s", out)
	}

	if _, err := env.run(t, "import", filepath.Join(env.dir, "scenario.tsv")); err == nil ||
		!strings.Contains(err.Error(), "has been filtered") {
		t.Fatalf("expected import into filtered database to fail, got %v", err)
	}

	env.mustRun(t, "reset")
	out = env.mustRun(t, "proteins")
	if !strings.HasSuffix(out, "3 proteins\n") {
		t.Fatalf("expected baseline proteins after reset:\n%s", out)
	}
	out = env.mustRun(t, "criteria")
	if !strings.Contains(out, "Not filtered.") {
		t.Fatalf("expected criteria to be cleared:\n%s", out)
	}
}

func TestScopedListing(t *testing.T) {
	env := newCLIEnv(t)
	env.importScenario(t)

	out := env.mustRun(t, "psms", "--protein", "3")
	if !strings.Contains(out, "SAMPLER") || !strings.HasSuffix(out, "1 PSMs\n") {
		t.Fatalf("unexpected scoped psms:\n%s", out)
	}

	if _, err := env.run(t, "psms", "--site", "MK"); err == nil {
		t.Fatal("expected multi-residue site to be rejected")
	}

	out = env.mustRun(t, "proteins", "--cluster", "1")
	if !strings.HasSuffix(out, "0 proteins\n") {
		t.Fatalf("cluster scope before filtering should list nothing:\n%s", out)
	}
}

func TestFilterTakesNoScope(t *testing.T) {
	env := newCLIEnv(t)
	env.importScenario(t)

	if _, err := env.run(t, "filter", "--protein", "3"); err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Fatalf("expected scope flag to be rejected by filter, got %v", err)
	}
	out := env.mustRun(t, "summarize")
	if !strings.Contains(out, "Not filtered.") {
		t.Fatalf("rejected run must not touch the database:\n%s", out)
	}
}

func TestFilterRejectsInvalidThresholds(t *testing.T) {
	env := newCLIEnv(t)
	env.importScenario(t)

	if _, err := env.run(t, "filter", "--max-qvalue", "2"); err == nil {
		t.Fatal("expected invalid q-value to be rejected")
	}
	out := env.mustRun(t, "summarize")
	if !strings.Contains(out, "Not filtered.") {
		t.Fatalf("rejected run must not touch the database:\n%s", out)
	}
}

func TestCommandsRequireDatabase(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "summarize"); err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing database error, got %v", err)
	}
}

func TestConfigInit(t *testing.T) {
	env := newCLIEnv(t)
	target := filepath.Join(env.dir, "conf", "idfilter.toml")

	out := env.mustRun(t, "config", "init", "--path", target)
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file: %v", err)
	}
	if _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected existing config to be protected")
	}
	env.mustRun(t, "config", "init", "--path", target, "--overwrite")
}
