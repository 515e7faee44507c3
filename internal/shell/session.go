package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mimir/internal/history"
	"mimir/internal/ui"
)

const farewell = "Exiting mimir..."

// Session is the read, record, dispatch loop. Every non-blank line is
// written to history before dispatch; a recording failure is reported
// but never blocks the command.
type Session struct {
	router *Router
	hist   *history.Store
	styles ui.Styles
	in     io.Reader
	out    io.Writer
	user   string
	runID  string
	active string
	log    *zap.Logger
}

// SessionConfig wires a Session.
type SessionConfig struct {
	Router     *Router
	History    *history.Store
	Styles     ui.Styles
	In         io.Reader
	Out        io.Writer
	User       string
	ActiveCase string
	Logger     *zap.Logger
}

// NewSession creates a Session with a fresh run ID.
func NewSession(cfg SessionConfig) *Session {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Session{
		router: cfg.Router,
		hist:   cfg.History,
		styles: cfg.Styles,
		in:     cfg.In,
		out:    cfg.Out,
		user:   cfg.User,
		runID:  uuid.NewString(),
		active: cfg.ActiveCase,
		log:    cfg.Logger,
	}
}

// Run drives the loop until exit/quit, EOF or context cancellation.
// It always returns nil: every in-shell failure is contained, and the
// three ways out are all graceful.
func (s *Session) Run(ctx context.Context) error {
	s.log.Info("session start",
		zap.String("run_id", s.runID),
		zap.String("user", s.user))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			s.log.Debug("input closed", zap.Error(err))
		}
	}()

	for {
		fmt.Fprint(s.out, s.prompt())

		var raw string
		select {
		case <-ctx.Done():
			// The prompt line was interrupted mid-read.
			fmt.Fprintln(s.out, "\n"+farewell)
			s.log.Info("session interrupted", zap.String("run_id", s.runID))
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out, "\n"+farewell)
				s.log.Info("session input closed", zap.String("run_id", s.runID))
				return nil
			}
			raw = strings.TrimSpace(line)
		}
		if raw == "" {
			continue
		}

		if err := s.hist.Append(raw, s.active); err != nil {
			if errors.Is(err, history.ErrUnrecordable) {
				fmt.Fprintln(s.out, s.styles.Warning.Render("History not recorded: "+err.Error()))
			} else {
				fmt.Fprintln(s.out, s.styles.Warning.Render("History write failed: "+err.Error()))
			}
			s.log.Warn("history append failed",
				zap.String("run_id", s.runID),
				zap.Error(err))
		}

		cont, active := s.router.Dispatch(ctx, raw, s.active)
		if active != s.active {
			s.log.Info("active case changed",
				zap.String("run_id", s.runID),
				zap.String("from", s.active),
				zap.String("to", active))
		}
		s.active = active
		if !cont {
			fmt.Fprintln(s.out, farewell)
			s.log.Info("session end", zap.String("run_id", s.runID))
			return nil
		}
	}
}

// prompt renders the per-iteration prompt. With an active case:
// [user][mimir][case]|>  otherwise [user][cwd-leaf]|>
func (s *Session) prompt() string {
	user := s.styles.PromptUser.Render("[" + s.user + "]")
	if s.active != "" {
		label := s.styles.PromptLabel.Render("[mimir]")
		caseSeg := s.styles.PromptCase.Render("[" + s.active + "]")
		return user + label + caseSeg + "|> "
	}

	leaf := "/"
	if wd, err := os.Getwd(); err == nil {
		leaf = filepath.Base(wd)
	}
	return user + s.styles.PromptLabel.Render("["+leaf+"]") + "|> "
}
