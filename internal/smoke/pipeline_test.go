package smoke

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

// buildTool compiles one of the module's commands into dir.
func buildTool(t *testing.T, root, dir, pkg string) string {
	t.Helper()
	bin := filepath.Join(dir, filepath.Base(pkg))
	if runtime.GOOS == "windows" {
		bin += ".exe"
	}
	cmd := exec.Command("go", "build", "-o", bin, pkg)
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build %s: %v\n%s", pkg, err, out)
	}
	return bin
}

func run(t *testing.T, bin string, args ...string) []byte {
	t.Helper()
	cmd := exec.Command(bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%s %s: %v\n%s", filepath.Base(bin), strings.Join(args, " "), err, out)
	}
	return out
}

func TestSamplePipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline smoke test in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not on PATH")
	}
	root := repoRoot(t)
	tmp := t.TempDir()
	bin := filepath.Join(tmp, "bin")
	gen := buildTool(t, root, bin, "./examples/cmd/generate_samples")
	ctl := buildTool(t, root, bin, "./cmd/alsepctl")

	tapes := filepath.Join(tmp, "tapes")
	run(t, gen, "-out", tapes)

	info := run(t, ctl, "info", "--in", filepath.Join(tapes, "pse.a15.1.2"))
	if !bytes.Contains(info, []byte(",15,2,1972,0,45,06:00:00.000,")) {
		t.Fatalf("unexpected info summary:\n%s", info)
	}

	out := filepath.Join(tmp, "out")
	run(t, ctl, "batch", "--in", tapes, "--out-dir", out, "--concurrency", "2")

	f, err := os.Open(filepath.Join(out, "runs.jsonl"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()
	formats := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry struct {
			Format string `json:"format"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("journal line: %v", err)
		}
		if entry.Error != "" {
			t.Fatalf("%s tape failed: %s", entry.Format, entry.Error)
		}
		formats[entry.Format] = true
	}
	for _, want := range []string{"pse", "wtn", "wth"} {
		if !formats[want] {
			t.Errorf("no journal entry for %s", want)
		}
	}

	for _, base := range []string{"pse.a15.1", "wtn.1", "wth.1"} {
		verify := run(t, ctl, "manifest", "--verify", filepath.Join(out, base, "manifest.json"))
		if !bytes.Contains(verify, []byte("OK")) {
			t.Fatalf("%s manifest verify: %s", base, verify)
		}
	}

	mseed := filepath.Join(tmp, "pse.mseed")
	run(t, ctl, "mseed", "--in", filepath.Join(tapes, "pse.a15.1.2"), "--out", mseed)
	if st, err := os.Stat(mseed); err != nil || st.Size() == 0 {
		t.Fatalf("mseed output missing or empty: %v", err)
	}
}
