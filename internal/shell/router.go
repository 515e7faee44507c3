package shell

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mimir/internal/casefile"
	"mimir/internal/history"
	"mimir/internal/intel"
	"mimir/internal/ui"
)

// Router dispatches one tokenized command line. Matching runs in
// priority tiers: case lifecycle, then built-ins, then lookups, then
// the external-process fallback. Nothing a handler does ends the
// session; only exit/quit flip the continue flag.
type Router struct {
	cases         *casefile.Store
	hist          *history.Store
	providers     map[intel.Kind]intel.Provider
	styles        ui.Styles
	out           io.Writer
	followCaseDir bool
	lookupTimeout time.Duration
	log           *zap.Logger
}

// RouterConfig wires a Router.
type RouterConfig struct {
	Cases         *casefile.Store
	History       *history.Store
	Providers     []intel.Provider
	Styles        ui.Styles
	Out           io.Writer
	FollowCaseDir bool
	LookupTimeout time.Duration
	Logger        *zap.Logger
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	providers := make(map[intel.Kind]intel.Provider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p != nil {
			providers[p.Kind()] = p
		}
	}
	return &Router{
		cases:         cfg.Cases,
		hist:          cfg.History,
		providers:     providers,
		styles:        cfg.Styles,
		out:           cfg.Out,
		followCaseDir: cfg.FollowCaseDir,
		lookupTimeout: cfg.LookupTimeout,
		log:           cfg.Logger,
	}
}

// Dispatch routes one raw line. It returns whether the session should
// continue and the (possibly changed) active case name. A panicking
// handler is contained here and reported like any other failure.
func (r *Router) Dispatch(ctx context.Context, line, active string) (cont bool, newActive string) {
	cont, newActive = true, active
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(fmt.Sprintf("Internal error: %v", rec))
			r.log.Error("dispatch panic", zap.Any("panic", rec), zap.String("line", line))
			cont, newActive = true, active
		}
	}()

	args, err := Split(line)
	if err != nil {
		r.fail("Error parsing command: " + err.Error())
		return
	}
	if len(args) == 0 {
		return
	}

	cmd := strings.ToLower(args[0])
	rest := args[1:]

	// Tier 1: case lifecycle.
	if cmd == "case" {
		newActive = r.caseCommand(rest, active)
		return
	}

	// Tier 2: built-ins.
	switch cmd {
	case "help":
		topic := ""
		if len(rest) > 0 {
			topic = strings.ToLower(rest[0])
		}
		renderHelp(r.out, r.styles, topic)
		return
	case "clear":
		fmt.Fprint(r.out, "\x1b[2J\x1b[H")
		return
	case "history":
		r.historyCommand(rest)
		return
	case "exit", "quit":
		cont = false
		return
	}

	// Tier 3: lookups.
	switch cmd {
	case "hash":
		r.hashCommand(ctx, rest)
		return
	case "ipcheck":
		r.ipcheckCommand(ctx, rest)
		return
	case "urlcheck":
		r.urlcheckCommand(ctx, rest)
		return
	case "lookup":
		r.lookupCommand(ctx, rest)
		return
	}

	// Tier 4: everything else goes to the host.
	r.externalCommand(ctx, args[0], rest, active)
	return
}

// caseAliases maps the short flags kept from the classic surface.
var caseAliases = map[string]string{
	"-n": "create",
	"-o": "open",
	"-c": "close",
}

const caseUsage = `Usage: case <create|open|close|list|info|evidence|note> [args]
       case [-n | -o | -c] <name>`

func (r *Router) caseCommand(args []string, active string) string {
	if len(args) == 0 {
		r.println(caseUsage)
		return active
	}

	sub := strings.ToLower(args[0])
	if full, ok := caseAliases[sub]; ok {
		sub = full
	}

	switch sub {
	case "create":
		if len(args) < 2 {
			r.println("Usage: case create <name>")
			return active
		}
		name := args[1]
		c, existed, err := r.cases.Create(name)
		switch {
		case errors.Is(err, casefile.ErrInvalidName):
			r.fail("Invalid case name.")
			return active
		case errors.Is(err, casefile.ErrExists):
			r.warn(fmt.Sprintf("Case %q already exists (strict create is on).", name))
			return active
		case err != nil:
			r.fail("Error: " + err.Error())
			return active
		}
		if existed {
			r.warn(fmt.Sprintf("Reusing existing case %q.", c.Name))
		} else {
			r.success(fmt.Sprintf("Created case %q.", c.Name))
		}
		return c.Name

	case "open":
		if len(args) < 2 {
			r.println("Usage: case open <name>")
			return active
		}
		name := args[1]
		c, err := r.cases.Open(name)
		switch {
		case errors.Is(err, casefile.ErrInvalidName):
			r.fail("Invalid case name.")
			return active
		case errors.Is(err, casefile.ErrNotFound):
			r.fail(fmt.Sprintf("No case named %q. Try: case list", name))
			return active
		case err != nil:
			r.fail("Error: " + err.Error())
			return active
		}
		r.success(fmt.Sprintf("Opened case %q.", c.Name))
		r.muted(fmt.Sprintf("%d evidence items, %d notes.", len(c.Evidence), len(c.Notes)))
		return c.Name

	case "close":
		if active == "" {
			r.warn("No active case.")
			return active
		}
		r.success(fmt.Sprintf("Closed case %q.", active))
		return ""

	case "list":
		names, err := r.cases.List()
		if err != nil {
			r.fail("Error: " + err.Error())
			return active
		}
		renderCaseList(r.out, r.styles, names)
		return active

	case "info":
		name := active
		if len(args) >= 2 {
			name = args[1]
		}
		if name == "" {
			r.warn("No active case. Usage: case info <name>")
			return active
		}
		c, err := r.cases.Get(name)
		if err != nil {
			if errors.Is(err, casefile.ErrNotFound) {
				r.fail(fmt.Sprintf("No case named %q.", name))
			} else {
				r.fail("Error: " + err.Error())
			}
			return active
		}
		renderCase(r.out, r.styles, c)
		return active

	case "evidence":
		if active == "" {
			r.warn("No active case; open one first.")
			return active
		}
		if len(args) < 2 {
			r.println("Usage: case evidence <file> [description]")
			return active
		}
		desc := joinRest(args[2:])
		if err := r.cases.AddEvidence(active, args[1], desc); err != nil {
			r.fail("Error: " + err.Error())
			return active
		}
		r.success(fmt.Sprintf("Evidence recorded in %q.", active))
		return active

	case "note":
		if active == "" {
			r.warn("No active case; open one first.")
			return active
		}
		text := joinRest(args[1:])
		if text == "" {
			r.println("Usage: case note <text>")
			return active
		}
		if err := r.cases.AddNote(active, text); err != nil {
			r.fail("Error: " + err.Error())
			return active
		}
		r.success(fmt.Sprintf("Note added to %q.", active))
		return active

	default:
		r.println(caseUsage)
		return active
	}
}

func (r *Router) historyCommand(args []string) {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			r.println("Usage: history [n]")
			return
		}
		limit = n
	}
	entries, err := r.hist.Read(limit)
	if err != nil {
		r.fail("Error: " + err.Error())
		return
	}
	renderHistory(r.out, r.styles, entries)
}

func (r *Router) hashCommand(ctx context.Context, args []string) {
	if len(args) == 0 {
		r.println("Usage: hash <file>, hash -h <hash>")
		return
	}

	if args[0] == "-h" {
		if len(args) < 2 {
			r.println("Usage: hash -h <hash>")
			return
		}
		digest := strings.ToLower(args[1])
		if !intel.ValidHash(digest) {
			r.fail("Invalid hash format.")
			return
		}
		r.lookupArtifact(ctx, intel.KindHash, digest)
		return
	}

	digest, err := hashFile(args[0])
	if err != nil {
		r.fail("Error: " + err.Error())
		return
	}
	fmt.Fprintf(r.out, "%s  %s\n", r.styles.Muted.Render("SHA-256"), digest)
	r.lookupArtifact(ctx, intel.KindHash, digest)
}

// hashFile streams a file through SHA-256.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (r *Router) ipcheckCommand(ctx context.Context, args []string) {
	if len(args) != 1 {
		r.println("Usage: ipcheck <ip address>")
		return
	}
	if !intel.ValidIP(args[0]) {
		r.fail("Invalid IP address.")
		return
	}
	r.lookupArtifact(ctx, intel.KindIP, args[0])
}

func (r *Router) urlcheckCommand(ctx context.Context, args []string) {
	if len(args) != 1 {
		r.println("Usage: urlcheck <url>")
		return
	}
	if !intel.ValidURL(args[0]) {
		r.fail("Invalid URL.")
		return
	}
	r.lookupArtifact(ctx, intel.KindURL, args[0])
}

func (r *Router) lookupCommand(ctx context.Context, args []string) {
	if len(args) != 1 {
		r.println("Usage: lookup <artifact>")
		return
	}
	kind, ok := intel.Detect(args[0])
	if !ok {
		r.fail("Unrecognized artifact type (expected IPv4, MD5/SHA-1/SHA-256 or URL).")
		return
	}
	r.lookupArtifact(ctx, kind, args[0])
}

func (r *Router) lookupArtifact(ctx context.Context, kind intel.Kind, artifact string) {
	p, ok := r.providers[kind]
	if !ok {
		r.warn(fmt.Sprintf("No %s integration configured.", kind))
		return
	}

	lctx := ctx
	if r.lookupTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()
	}

	r.log.Debug("lookup",
		zap.String("kind", string(kind)),
		zap.String("artifact", artifact))

	rep, err := p.Lookup(lctx, artifact)
	switch {
	case err == nil:
		renderReport(r.out, r.styles, rep)
	case errors.Is(err, intel.ErrNotFound):
		r.muted(fmt.Sprintf("No record for %s.", artifact))
	case errors.Is(err, intel.ErrUnavailable):
		r.warn(err.Error())
	default:
		r.fail("Error: " + err.Error())
	}
}

func (r *Router) externalCommand(ctx context.Context, name string, args []string, active string) {
	dir := ""
	if r.followCaseDir && active != "" {
		dir = r.cases.Dir(active)
	}

	res := runExternal(ctx, dir, name, args, r.log)
	if res.Stdout != "" {
		fmt.Fprint(r.out, res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			fmt.Fprintln(r.out)
		}
	}
	switch {
	case res.Err != nil:
		r.fail("Error: " + res.Err.Error())
	case res.ExitCode != 0:
		if msg := strings.TrimSpace(res.Stderr); msg != "" {
			r.fail("Error: " + msg)
		} else {
			r.warn(fmt.Sprintf("Exited with status %d.", res.ExitCode))
		}
	case res.Stderr != "":
		r.muted(strings.TrimSpace(res.Stderr))
	}
}

func (r *Router) println(s string) { fmt.Fprintln(r.out, s) }
func (r *Router) success(s string) { fmt.Fprintln(r.out, r.styles.Success.Render(s)) }
func (r *Router) warn(s string)    { fmt.Fprintln(r.out, r.styles.Warning.Render(s)) }
func (r *Router) fail(s string)    { fmt.Fprintln(r.out, r.styles.Error.Render(s)) }
func (r *Router) muted(s string)   { fmt.Fprintln(r.out, r.styles.Muted.Render(s)) }
