package runner

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests rely on POSIX utilities")
	}
	return &Runner{Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
}

// lookPath resolves a utility to an absolute path or skips the test.
func lookPath(t *testing.T, name string) string {
	t.Helper()
	p, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		t.Fatal(err)
	}
	return abs
}

func TestRun_Echo(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(Request{Executable: lookPath(t, "echo"), Args: []string{"hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != 0 {
		t.Errorf("Status = %d, want 0", res.Status)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
	if res.Stderr != "" {
		t.Errorf("Stderr = %q, want empty", res.Stderr)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestRun_False(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(Request{Executable: lookPath(t, "false")})
	if res != nil {
		t.Errorf("Result = %+v, want nil", res)
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v (%T), want *ExecError", err, err)
	}
	if !execErr.Exited {
		t.Error("Exited = false, want true")
	}
	if execErr.ExitCode == 0 {
		t.Error("ExitCode = 0, want non-zero")
	}
	if execErr.Stdout != "" || execErr.Stderr != "" {
		t.Errorf("captured output = %q / %q, want empty", execErr.Stdout, execErr.Stderr)
	}
}

func TestRun_NonZeroExitCapturesOutput(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(Request{
		Executable: lookPath(t, "sh"),
		Args:       []string{"-c", "echo partial; echo broken >&2; exit 3"},
	})
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want *ExecError", err)
	}
	if execErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", execErr.ExitCode)
	}
	if execErr.Stdout != "partial\n" {
		t.Errorf("Stdout = %q, want %q", execErr.Stdout, "partial\n")
	}
	if execErr.Stderr != "broken\n" {
		t.Errorf("Stderr = %q, want %q", execErr.Stderr, "broken\n")
	}
	if !strings.Contains(err.Error(), "exit status 3") || !strings.Contains(err.Error(), "broken") {
		t.Errorf("Error() = %q, want exit status and first stderr line", err.Error())
	}
}

func TestRun_Signaled(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(Request{
		Executable: lookPath(t, "sh"),
		Args:       []string{"-c", "echo before; kill -9 $$"},
	})
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want *ExecError", err)
	}
	if execErr.Exited {
		t.Error("Exited = true, want false")
	}
	if execErr.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", execErr.ExitCode)
	}
	if execErr.Signal != "killed" {
		t.Errorf("Signal = %q, want %q", execErr.Signal, "killed")
	}
	if execErr.Stdout != "before\n" {
		t.Errorf("Stdout = %q, want %q", execErr.Stdout, "before\n")
	}
}

func TestRun_BinaryNotFound(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(Request{Executable: "/usr/bin/nonexistent-binary-xyz-123"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if res != nil {
		t.Errorf("Result = %+v, want nil", res)
	}
	var execErr *ExecError
	if errors.As(err, &execErr) {
		t.Fatalf("error is *ExecError, want a start failure: %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, want fs.ErrNotExist", err)
	}
}

func TestRun_NotExecutable(t *testing.T) {
	r := newTestRunner(t)
	path := filepath.Join(t.TempDir(), "script")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := r.Run(Request{Executable: path})
	if err == nil {
		t.Fatal("expected error for non-executable file")
	}
	var execErr *ExecError
	if errors.As(err, &execErr) {
		t.Fatalf("error is *ExecError, want a start failure: %v", err)
	}
}

func TestRun_EmptyExecutable(t *testing.T) {
	r := newTestRunner(t)
	if _, err := r.Run(Request{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

func TestRun_Input(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(Request{Executable: lookPath(t, "cat"), Input: Input("abc")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "abc" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "abc")
	}
}

func TestRun_InputUTF8(t *testing.T) {
	r := newTestRunner(t)
	in := "héllo, wörld ✓\n"
	res, err := r.Run(Request{Executable: lookPath(t, "wc"), Args: []string{"-c"}, Input: Input(in)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := len([]byte(in))
	if got := strings.TrimSpace(res.Stdout); got != strconv.Itoa(want) {
		t.Errorf("wc -c = %q, want %d", got, want)
	}
}

func TestRun_NoInputReadsEOF(t *testing.T) {
	r := newTestRunner(t)
	// cat would block forever if stdin were an open pipe.
	res, err := r.Run(Request{Executable: lookPath(t, "cat")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "" {
		t.Errorf("Stdout = %q, want empty", res.Stdout)
	}
}

func TestRun_InputIgnoredByChild(t *testing.T) {
	r := newTestRunner(t)
	big := strings.Repeat("x", 1<<20)
	res, err := r.Run(Request{Executable: lookPath(t, "true"), Input: Input(big)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != 0 {
		t.Errorf("Status = %d, want 0", res.Status)
	}
}

func TestRun_LargeInterleavedOutput(t *testing.T) {
	r := newTestRunner(t)
	// Each stream carries far more than a pipe buffer. Writing stderr in
	// full before stdout deadlocks a reader that drains stdout first.
	script := `head -c 262144 /dev/zero >&2
head -c 262144 /dev/zero
i=0
while [ $i -lt 2000 ]; do
  echo "out $i"
  echo "err $i" >&2
  i=$((i+1))
done`
	res, err := r.Run(Request{Executable: lookPath(t, "sh"), Args: []string{"-c", script}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wantOut, wantErr strings.Builder
	wantOut.WriteString(strings.Repeat("\x00", 262144))
	wantErr.WriteString(strings.Repeat("\x00", 262144))
	for i := 0; i < 2000; i++ {
		wantOut.WriteString("out " + strconv.Itoa(i) + "\n")
		wantErr.WriteString("err " + strconv.Itoa(i) + "\n")
	}
	if len(res.Stdout) != wantOut.Len() || res.Stdout != wantOut.String() {
		t.Errorf("len(Stdout) = %d, want %d", len(res.Stdout), wantOut.Len())
	}
	if len(res.Stderr) != wantErr.Len() || res.Stderr != wantErr.String() {
		t.Errorf("len(Stderr) = %d, want %d", len(res.Stderr), wantErr.Len())
	}
}

func TestRun_DefaultDirIsExecutableDir(t *testing.T) {
	r := newTestRunner(t)
	pwd := lookPath(t, "pwd")
	res, err := r.Run(Request{Executable: pwd, Args: []string{"-P"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := filepath.EvalSymlinks(filepath.Dir(pwd))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(res.Stdout); got != want {
		t.Errorf("cwd = %q, want %q", got, want)
	}
}

func TestRun_Dir(t *testing.T) {
	r := newTestRunner(t)
	dir := t.TempDir()
	res, err := r.Run(Request{Executable: lookPath(t, "pwd"), Dir: dir, Args: []string{"-P"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(res.Stdout); got != want {
		t.Errorf("cwd = %q, want %q", got, want)
	}
}

func TestRun_FileURL(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(Request{Executable: "file://" + lookPath(t, "echo"), Args: []string{"url"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "url\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "url\n")
	}
}

func TestRun_RelativeExecutableUsesCallerDirectory(t *testing.T) {
	r := newTestRunner(t)
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	script := "#!" + lookPath(t, "sh") + "\npwd -P\n"
	if err := os.WriteFile(filepath.Join(dir, "bin", "where"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	res, err := r.Run(Request{Executable: "bin/where"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := filepath.EvalSymlinks(filepath.Join(dir, "bin"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(res.Stdout); got != want {
		t.Errorf("working directory = %q, want %q", got, want)
	}
}

func TestRun_RemoteURLRejected(t *testing.T) {
	r := newTestRunner(t)
	if _, err := r.Run(Request{Executable: "file://example.com/bin/echo"}); err == nil {
		t.Fatal("expected error for non-local URL")
	}
}

func TestRun_InvalidUTF8DecodesEmpty(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(Request{
		Executable: lookPath(t, "sh"),
		Args:       []string{"-c", `printf '\377\376'`},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "" {
		t.Errorf("Stdout = %q, want empty", res.Stdout)
	}
	if !bytes.Equal(res.RawStdout, []byte{0xff, 0xfe}) {
		t.Errorf("RawStdout = %v, want [255 254]", res.RawStdout)
	}
}

func TestRun_OutputTruncation(t *testing.T) {
	r := newTestRunner(t)
	r.MaxOutput = 100

	res, err := r.Run(Request{
		Executable: lookPath(t, "sh"),
		Args:       []string{"-c", "head -c 200000 /dev/zero; head -c 200000 /dev/zero >&2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if len(res.RawStdout) != 100 || len(res.RawStderr) != 100 {
		t.Errorf("captured %d/%d bytes, want 100/100", len(res.RawStdout), len(res.RawStderr))
	}
}

func TestRun_Logs(t *testing.T) {
	r := newTestRunner(t)
	var logs bytes.Buffer
	r.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	_, _ = r.Run(Request{
		Executable: lookPath(t, "sh"),
		Args:       []string{"-c", "echo out; echo oops >&2"},
		Input:      Input("ignored"),
	})

	out := logs.String()
	for _, want := range []string{
		`msg="starting process"`,
		"has_input=true",
		`arguments="-c, echo out; echo oops >&2"`,
		`msg="process finished"`,
		"level=ERROR",
		"stderr=",
		"run_id=",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("logs missing %q:\n%s", want, out)
		}
	}
}

func TestRun_NoStderrNoErrorLog(t *testing.T) {
	r := newTestRunner(t)
	var logs bytes.Buffer
	r.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	if _, err := r.Run(Request{Executable: lookPath(t, "echo"), Args: []string{"quiet"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(logs.String(), "level=ERROR") {
		t.Errorf("unexpected error record:\n%s", logs.String())
	}
}

func TestGo(t *testing.T) {
	r := newTestRunner(t)
	call := r.Go(Request{Executable: lookPath(t, "echo"), Args: []string{"async"}})
	<-call.Done()
	res, err := call.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "async\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "async\n")
	}
}

func TestGo_Failure(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Go(Request{Executable: lookPath(t, "false")}).Wait()
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want *ExecError", err)
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
	if got := ExitCode(&ExecError{Exited: true, ExitCode: 7}); got != 7 {
		t.Errorf("ExitCode(ExecError) = %d, want 7", got)
	}
	if got := ExitCode(errors.New("start failed")); got != -1 {
		t.Errorf("ExitCode(other) = %d, want -1", got)
	}
}

