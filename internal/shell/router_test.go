package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mimir/internal/casefile"
	"mimir/internal/history"
	"mimir/internal/intel"
	"mimir/internal/ui"
)

// scriptedProvider plays back a fixed outcome and records artifacts.
type scriptedProvider struct {
	kind     intel.Kind
	calls    []string
	err      error
	panicMsg string
}

func (p *scriptedProvider) Kind() intel.Kind { return p.kind }

func (p *scriptedProvider) Validate(string) bool { return true }
func (p *scriptedProvider) Lookup(ctx context.Context, artifact string) (*intel.Report, error) {
	p.calls = append(p.calls, artifact)
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.err != nil {
		return nil, p.err
	}
	rep := &intel.Report{Kind: p.kind, Artifact: artifact, Source: "Scripted"}
	rep.Add("Artifact", artifact, intel.ToneNeutral)
	return rep, nil
}

type routerFixture struct {
	router *Router
	out    *bytes.Buffer
	cases  *casefile.Store
	hist   *history.Store
	ip     *scriptedProvider
	hash   *scriptedProvider
	url    *scriptedProvider
}

func newTestRouter(t *testing.T) *routerFixture {
	t.Helper()

	root := t.TempDir()
	cases := casefile.NewStore(filepath.Join(root, "Investigations"), "tester", false, nil)
	hist, err := history.New(filepath.Join(root, ".mhistory"), 50, nil)
	if err != nil {
		t.Fatalf("history.New failed: %v", err)
	}

	f := &routerFixture{
		out:   &bytes.Buffer{},
		cases: cases,
		hist:  hist,
		ip:    &scriptedProvider{kind: intel.KindIP},
		hash:  &scriptedProvider{kind: intel.KindHash},
		url:   &scriptedProvider{kind: intel.KindURL},
	}
	f.router = NewRouter(RouterConfig{
		Cases:     cases,
		History:   hist,
		Providers: []intel.Provider{f.ip, f.hash, f.url},
		Styles:    ui.NewStyles(ui.LightTheme()),
		Out:       f.out,
	})
	return f
}

func (f *routerFixture) dispatch(t *testing.T, line, active string) (bool, string) {
	t.Helper()
	f.out.Reset()
	return f.router.Dispatch(context.Background(), line, active)
}

func TestDispatchCaseLifecycle(t *testing.T) {
	f := newTestRouter(t)

	cont, active := f.dispatch(t, "case -n alpha", "")
	if !cont || active != "alpha" {
		t.Fatalf("create: cont=%v active=%q", cont, active)
	}
	if !strings.Contains(f.out.String(), "Created case") {
		t.Errorf("create output: %q", f.out.String())
	}

	_, active = f.dispatch(t, "case close", active)
	if active != "" {
		t.Fatalf("close should clear the active case, got %q", active)
	}

	_, active = f.dispatch(t, "case open alpha", "")
	if active != "alpha" {
		t.Fatalf("open: active=%q", active)
	}

	_, _ = f.dispatch(t, "case list", active)
	if !strings.Contains(f.out.String(), "alpha") {
		t.Errorf("list output: %q", f.out.String())
	}
}

func TestDispatchCaseAliasesMatchWords(t *testing.T) {
	f := newTestRouter(t)

	_, active := f.dispatch(t, "case create bravo", "")
	if active != "bravo" {
		t.Fatalf("create word form: active=%q", active)
	}
	_, active = f.dispatch(t, "case -o bravo", "")
	if active != "bravo" {
		t.Fatalf("-o alias: active=%q", active)
	}
	_, active = f.dispatch(t, "case -c", active)
	if active != "" {
		t.Fatalf("-c alias: active=%q", active)
	}
}

func TestDispatchCaseInvalidName(t *testing.T) {
	f := newTestRouter(t)

	cont, active := f.dispatch(t, `case -n "bad/name"`, "")
	if !cont || active != "" {
		t.Fatalf("invalid name must not activate: cont=%v active=%q", cont, active)
	}
	if !strings.Contains(f.out.String(), "Invalid case name") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchCaseOpenMissing(t *testing.T) {
	f := newTestRouter(t)

	_, active := f.dispatch(t, "case open ghost", "")
	if active != "" {
		t.Fatalf("missing case must not activate, got %q", active)
	}
	if !strings.Contains(f.out.String(), "No case named") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchCaseUsage(t *testing.T) {
	f := newTestRouter(t)

	_, _ = f.dispatch(t, "case", "")
	if !strings.Contains(f.out.String(), "Usage: case") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchCaseEvidenceAndNote(t *testing.T) {
	f := newTestRouter(t)
	_, active := f.dispatch(t, "case -n alpha", "")

	_, _ = f.dispatch(t, `case evidence /tmp/dump.bin "memory dump"`, active)
	if !strings.Contains(f.out.String(), "Evidence recorded") {
		t.Fatalf("evidence output: %q", f.out.String())
	}

	_, _ = f.dispatch(t, "case note suspect used a vpn", active)
	if !strings.Contains(f.out.String(), "Note added") {
		t.Fatalf("note output: %q", f.out.String())
	}

	_, _ = f.dispatch(t, "case info", active)
	out := f.out.String()
	if !strings.Contains(out, "/tmp/dump.bin") || !strings.Contains(out, "suspect used a vpn") {
		t.Errorf("info output: %q", out)
	}
}

func TestDispatchCaseEvidenceNeedsActiveCase(t *testing.T) {
	f := newTestRouter(t)

	_, _ = f.dispatch(t, "case evidence /tmp/dump.bin", "")
	if !strings.Contains(f.out.String(), "No active case") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchExit(t *testing.T) {
	f := newTestRouter(t)

	for _, cmd := range []string{"exit", "quit", "EXIT"} {
		cont, _ := f.dispatch(t, cmd, "alpha")
		if cont {
			t.Errorf("%s should stop the session", cmd)
		}
	}
}

func TestDispatchParseError(t *testing.T) {
	f := newTestRouter(t)

	cont, active := f.dispatch(t, `case -n "half`, "before")
	if !cont || active != "before" {
		t.Fatalf("parse error must be contained: cont=%v active=%q", cont, active)
	}
	if !strings.Contains(f.out.String(), "Error parsing command") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchLookupRouting(t *testing.T) {
	f := newTestRouter(t)

	_, _ = f.dispatch(t, "lookup 8.8.8.8", "")
	_, _ = f.dispatch(t, "lookup d41d8cd98f00b204e9800998ecf8427e", "")
	_, _ = f.dispatch(t, "lookup http://evil.example/x", "")

	if len(f.ip.calls) != 1 || f.ip.calls[0] != "8.8.8.8" {
		t.Errorf("ip calls: %v", f.ip.calls)
	}
	if len(f.hash.calls) != 1 {
		t.Errorf("hash calls: %v", f.hash.calls)
	}
	if len(f.url.calls) != 1 {
		t.Errorf("url calls: %v", f.url.calls)
	}
}

func TestDispatchLookupUnrecognized(t *testing.T) {
	f := newTestRouter(t)

	_, _ = f.dispatch(t, "lookup banana", "")
	if !strings.Contains(f.out.String(), "Unrecognized artifact type") {
		t.Errorf("output: %q", f.out.String())
	}
	if len(f.ip.calls)+len(f.hash.calls)+len(f.url.calls) != 0 {
		t.Error("no provider should be called for an unrecognized artifact")
	}
}

func TestDispatchIpcheckValidation(t *testing.T) {
	f := newTestRouter(t)

	_, _ = f.dispatch(t, "ipcheck 999.1.2.3", "")
	if !strings.Contains(f.out.String(), "Invalid IP address") {
		t.Errorf("output: %q", f.out.String())
	}
	if len(f.ip.calls) != 0 {
		t.Error("invalid IP must not reach the provider")
	}

	_, _ = f.dispatch(t, "ipcheck", "")
	if !strings.Contains(f.out.String(), "Usage: ipcheck") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchHashFile(t *testing.T) {
	f := newTestRouter(t)

	path := filepath.Join(t.TempDir(), "sample.bin")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

	_, _ = f.dispatch(t, "hash "+path, "")
	if !strings.Contains(f.out.String(), want) {
		t.Errorf("digest not printed: %q", f.out.String())
	}
	if len(f.hash.calls) != 1 || f.hash.calls[0] != want {
		t.Errorf("hash calls: %v", f.hash.calls)
	}
}

func TestDispatchHashDigestArg(t *testing.T) {
	f := newTestRouter(t)

	_, _ = f.dispatch(t, "hash -h D41D8CD98F00B204E9800998ECF8427E", "")
	if len(f.hash.calls) != 1 || f.hash.calls[0] != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("digest should be lowercased: %v", f.hash.calls)
	}

	_, _ = f.dispatch(t, "hash -h nothex", "")
	if !strings.Contains(f.out.String(), "Invalid hash format") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchHashMissingFile(t *testing.T) {
	f := newTestRouter(t)

	_, _ = f.dispatch(t, "hash /no/such/file.bin", "")
	if !strings.Contains(f.out.String(), "Error") {
		t.Errorf("output: %q", f.out.String())
	}
	if len(f.hash.calls) != 0 {
		t.Error("unreadable file must not trigger a lookup")
	}
}

func TestDispatchLookupNotFound(t *testing.T) {
	f := newTestRouter(t)
	f.ip.err = intel.ErrNotFound

	_, _ = f.dispatch(t, "ipcheck 8.8.8.8", "")
	if !strings.Contains(f.out.String(), "No record for 8.8.8.8") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchLookupUnavailable(t *testing.T) {
	f := newTestRouter(t)
	f.url.err = intel.ErrUnavailable

	cont, _ := f.dispatch(t, "urlcheck http://evil.example/x", "")
	if !cont {
		t.Fatal("unavailable integration must not end the session")
	}
	if !strings.Contains(f.out.String(), "unavailable") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchPanicContained(t *testing.T) {
	f := newTestRouter(t)
	f.ip.panicMsg = "boom"

	cont, active := f.dispatch(t, "ipcheck 8.8.8.8", "alpha")
	if !cont || active != "alpha" {
		t.Fatalf("panic must be contained: cont=%v active=%q", cont, active)
	}
	if !strings.Contains(f.out.String(), "Internal error") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchExternalCommand(t *testing.T) {
	f := newTestRouter(t)

	cont, active := f.dispatch(t, "echo hello from outside", "alpha")
	if !cont || active != "alpha" {
		t.Fatalf("external command: cont=%v active=%q", cont, active)
	}
	if !strings.Contains(f.out.String(), "hello from outside") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchExternalNotFound(t *testing.T) {
	f := newTestRouter(t)

	cont, _ := f.dispatch(t, "mimir-no-such-binary-xyz", "")
	if !cont {
		t.Fatal("a missing binary must not end the session")
	}
	if !strings.Contains(f.out.String(), "not found") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchHistoryTable(t *testing.T) {
	f := newTestRouter(t)
	if err := f.hist.Append("ipcheck 8.8.8.8", ""); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	if err := f.hist.Append("case list", "alpha"); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	_, _ = f.dispatch(t, "history", "")
	out := f.out.String()
	if !strings.Contains(out, "Command History") {
		t.Fatalf("missing title: %q", out)
	}
	if !strings.Contains(out, "ipcheck 8.8.8.8") || !strings.Contains(out, "case list") {
		t.Errorf("missing entries: %q", out)
	}
	if !strings.Contains(out, "Case") {
		t.Errorf("case column expected when an entry has a case: %q", out)
	}

	_, _ = f.dispatch(t, "history notanumber", "")
	if !strings.Contains(f.out.String(), "Usage: history") {
		t.Errorf("output: %q", f.out.String())
	}
}

func TestDispatchHelp(t *testing.T) {
	f := newTestRouter(t)

	_, _ = f.dispatch(t, "help", "")
	out := f.out.String()
	for _, name := range []string{"case", "lookup", "ipcheck", "hash", "urlcheck", "history"} {
		if !strings.Contains(out, name) {
			t.Errorf("help missing %q: %q", name, out)
		}
	}

	_, _ = f.dispatch(t, "help hash", "")
	if !strings.Contains(f.out.String(), "hash <file>") {
		t.Errorf("help hash output: %q", f.out.String())
	}
}
