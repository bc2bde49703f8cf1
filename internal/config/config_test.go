package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

const sample = `version: 1
log_level: debug
log_format: json
max_output: 4096
commands:
  hello:
    executable: /bin/echo
    args: [hello]
  build:
    executable: make
    dir: src
    input: "y\n"
pipelines:
  ci:
    steps: [build, hello]
  fan:
    steps: [hello, hello]
    mode: parallel
`

func TestLoad_FromRoot(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, sample)

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir {
		t.Errorf("Root = %q, want %q", res.Root, dir)
	}
	if res.Path != filepath.Join(dir, FileName) {
		t.Errorf("Path = %q", res.Path)
	}
	cfg := res.Config
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Level() != "debug" || cfg.Format() != "json" {
		t.Errorf("Level/Format = %q/%q, want debug/json", cfg.Level(), cfg.Format())
	}
	if cfg.MaxOutputBytes() != 4096 {
		t.Errorf("MaxOutputBytes = %d, want 4096", cfg.MaxOutputBytes())
	}
	hello := cfg.Commands["hello"]
	if hello.Executable != "/bin/echo" || len(hello.Args) != 1 || hello.Args[0] != "hello" {
		t.Errorf("hello = %+v", hello)
	}
	if hello.Input != nil {
		t.Errorf("hello.Input = %q, want nil", *hello.Input)
	}
	build := cfg.Commands["build"]
	if build.Dir != filepath.Join(dir, "src") {
		t.Errorf("build.Dir = %q, want resolved against root", build.Dir)
	}
	if build.Input == nil || *build.Input != "y\n" {
		t.Errorf("build.Input = %v, want %q", build.Input, "y\n")
	}
	if got := cfg.Pipelines["ci"].ModeOrDefault(); got != Sequential {
		t.Errorf("ci mode = %q, want %q", got, Sequential)
	}
	if got := cfg.Pipelines["fan"].ModeOrDefault(); got != Parallel {
		t.Errorf("fan mode = %q, want %q", got, Parallel)
	}
}

func TestLoad_FromSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "version: 2\n")

	sub := filepath.Join(root, "pkg", "foo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != root {
		t.Errorf("Root = %q, want %q", res.Root, root)
	}
	if res.Config.Version != 2 {
		t.Errorf("Version = %d, want 2", res.Config.Version)
	}
}

func TestLoad_RelativeExecutableFromSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `commands:
  hello:
    executable: ./scripts/hello.sh
    dir: .
  url:
    executable: file:///bin/echo
  bare:
    executable: echo
`)
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cmds := res.Config.Commands
	if want := filepath.Join(root, "scripts", "hello.sh"); cmds["hello"].Executable != want {
		t.Errorf("hello executable = %q, want %q", cmds["hello"].Executable, want)
	}
	if cmds["hello"].Dir != root {
		t.Errorf("hello dir = %q, want %q", cmds["hello"].Dir, root)
	}
	if cmds["url"].Executable != "file:///bin/echo" {
		t.Errorf("url executable = %q, want it unchanged", cmds["url"].Executable)
	}
	if cmds["bare"].Executable != "echo" {
		t.Errorf("bare executable = %q, want it left for PATH lookup", cmds["bare"].Executable)
	}
}

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir {
		t.Errorf("Root = %q, want %q (fallback to start dir)", res.Root, dir)
	}
	if res.Path != "" {
		t.Errorf("Path = %q, want empty", res.Path)
	}
	cfg := res.Config
	if cfg.Level() != DefaultLogLevel || cfg.Format() != DefaultLogFormat {
		t.Errorf("defaults = %q/%q", cfg.Level(), cfg.Format())
	}
	if cfg.MaxOutputBytes() != 0 {
		t.Errorf("MaxOutputBytes = %d, want 0 (unlimited)", cfg.MaxOutputBytes())
	}
	if cfg.HistorySize() != DefaultHistory {
		t.Errorf("HistorySize = %d, want %d", cfg.HistorySize(), DefaultHistory)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "commands: [unterminated\n")

	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"missing executable": "commands:\n  x: {args: [a]}\n",
		"unknown step":       "commands:\n  x: {executable: /bin/true}\npipelines:\n  p: {steps: [y]}\n",
		"empty pipeline":     "pipelines:\n  p: {steps: []}\n",
		"unknown mode":       "commands:\n  x: {executable: /bin/true}\npipelines:\n  p: {steps: [x], mode: random}\n",
		"bad log format":     "log_format: xml\n",
		"negative output":    "max_output: -1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, body)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), "validating") {
				t.Errorf("error = %q, want validation error", err)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	cfg := &Config{}
	if r, b := cfg.RateLimit(); r != DefaultRateLimit || b != DefaultBurst {
		t.Errorf("default RateLimit = %v/%d", r, b)
	}
	cfg.HTTP = HTTPConfig{RateLimit: 5}
	if r, b := cfg.RateLimit(); r != 5 || b != 5 {
		t.Errorf("RateLimit = %v/%d, want 5/5", r, b)
	}
	cfg.HTTP = HTTPConfig{RateLimit: -1}
	if r, _ := cfg.RateLimit(); r != 0 {
		t.Errorf("disabled RateLimit = %v, want 0", r)
	}
}

func TestNames_Sorted(t *testing.T) {
	cfg := &Config{
		Commands:  map[string]Command{"b": {}, "a": {}, "c": {}},
		Pipelines: map[string]Pipeline{"z": {}, "y": {}},
	}
	if got := strings.Join(cfg.CommandNames(), ","); got != "a,b,c" {
		t.Errorf("CommandNames = %s", got)
	}
	if got := strings.Join(cfg.PipelineNames(), ","); got != "y,z" {
		t.Errorf("PipelineNames = %s", got)
	}
}
