package shell

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"mimir/internal/casefile"
	"mimir/internal/history"
	"mimir/internal/intel"
	"mimir/internal/ui"
)

const (
	maxCommandWidth = 120
	maxCaseWidth    = 40
	timeLayout      = "2006-01-02 15:04:05"
)

// truncate caps s at max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func toneStyle(styles ui.Styles, tone intel.Tone) func(...string) string {
	switch tone {
	case intel.ToneGood:
		return styles.Success.Render
	case intel.ToneWarn:
		return styles.Warning.Render
	case intel.ToneBad:
		return styles.Error.Render
	default:
		return styles.Body.Render
	}
}

// renderReport prints a provider report as aligned label/value rows
// with tone coloring, details underneath.
func renderReport(w io.Writer, styles ui.Styles, rep *intel.Report) {
	fmt.Fprintln(w, styles.Title.Render(fmt.Sprintf("%s report for %s", rep.Source, rep.Artifact)))

	labelWidth := 0
	for _, row := range rep.Rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
	}
	for _, row := range rep.Rows {
		if row.Value == "" {
			continue
		}
		label := styles.Muted.Render(fmt.Sprintf("%-*s", labelWidth, row.Label))
		fmt.Fprintf(w, "  %s  %s\n", label, toneStyle(styles, row.Tone)(row.Value))
	}

	if len(rep.Details) > 0 {
		fmt.Fprintln(w, styles.Subtitle.Render("Recent activity"))
		for _, d := range rep.Details {
			fmt.Fprintf(w, "  - %s\n", styles.Muted.Render(d))
		}
	}
}

// renderHistory prints entries as a table, most recent first. The Case
// column only appears when at least one entry carries a case.
func renderHistory(w io.Writer, styles ui.Styles, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No history yet."))
		return
	}

	hasCase := false
	for _, e := range entries {
		if e.Case != "" {
			hasCase = true
			break
		}
	}

	headers := []string{"Num", "Command", "Timestamp"}
	if hasCase {
		headers = []string{"Num", "Command", "Case", "Timestamp"}
	}
	table := ui.NewSimpleTable("Command History", headers)
	for i, e := range entries {
		num := strconv.Itoa(i + 1)
		command := truncate(e.Command, maxCommandWidth)
		if hasCase {
			table.AddRow(num, command, truncate(e.Case, maxCaseWidth), e.Timestamp)
		} else {
			table.AddRow(num, command, e.Timestamp)
		}
	}
	fmt.Fprint(w, table.View(styles))
}

// renderCaseList prints the known case names.
func renderCaseList(w io.Writer, styles ui.Styles, names []string) {
	if len(names) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No cases yet."))
		return
	}
	table := ui.NewSimpleTable("Cases", []string{"Num", "Name"})
	for i, name := range names {
		table.AddRow(strconv.Itoa(i+1), name)
	}
	fmt.Fprint(w, table.View(styles))
}

// renderCase prints one case's metadata, evidence and notes.
func renderCase(w io.Writer, styles ui.Styles, c *casefile.Case) {
	fmt.Fprintln(w, styles.Title.Render("Case "+c.Name))
	fmt.Fprintf(w, "  %s  %s\n", styles.Muted.Render("Examiner"), c.Examiner)
	fmt.Fprintf(w, "  %s   %s\n", styles.Muted.Render("Created"), c.Created.Format(timeLayout))
	fmt.Fprintf(w, "  %s   %s\n", styles.Muted.Render("Updated"), c.Updated.Format(timeLayout))

	fmt.Fprintln(w, styles.Subtitle.Render(fmt.Sprintf("Evidence (%d)", len(c.Evidence))))
	for _, ev := range c.Evidence {
		line := ev.File
		if ev.Description != "" {
			line += "  " + styles.Muted.Render(ev.Description)
		}
		fmt.Fprintf(w, "  - %s  %s\n", line, styles.Muted.Render(ev.Added.Format(timeLayout)))
	}

	fmt.Fprintln(w, styles.Subtitle.Render(fmt.Sprintf("Notes (%d)", len(c.Notes))))
	for i, note := range c.Notes {
		fmt.Fprintf(w, "  %d. %s\n", i+1, note)
	}
}

// renderHelp prints the command surface, or one command's usage.
func renderHelp(w io.Writer, styles ui.Styles, topic string) {
	type helpEntry struct {
		name  string
		usage string
		desc  string
	}
	entries := []helpEntry{
		{"case", `case <create|open|close|list|info|evidence|note> [args]`, "Manage investigation cases (-n, -o, -c shorthands for create, open, close)."},
		{"lookup", "lookup <artifact>", "Detect artifact type (IP, hash, URL) and query the matching service."},
		{"ipcheck", "ipcheck <ip>", "Query AbuseIPDB for an IPv4 address."},
		{"hash", "hash <file>, hash -h <hash>", "Hash a file with SHA-256, or take a digest, and query MalwareBazaar."},
		{"urlcheck", "urlcheck <url>", "Query URLHaus for a URL."},
		{"history", "history [n]", "Show recorded commands, most recent first."},
		{"clear", "clear", "Clear the screen."},
		{"help", "help [command]", "Show this list, or one command's usage."},
		{"exit", "exit", "Leave the shell (quit works too)."},
	}

	if topic != "" {
		for _, e := range entries {
			if e.name == topic {
				fmt.Fprintf(w, "%s\n  %s\n", styles.Bold.Render(e.usage), e.desc)
				return
			}
		}
		fmt.Fprintln(w, styles.Warning.Render("No such command: "+topic))
		fmt.Fprintln(w, "Anything not listed by help runs as a host command.")
		return
	}

	table := ui.NewSimpleTable("Commands", []string{"Command", "Description"})
	for _, e := range entries {
		table.AddRow(e.name, e.desc)
	}
	fmt.Fprint(w, table.View(styles))
	fmt.Fprintln(w, styles.Muted.Render("Anything else runs as a host command."))
}

// joinRest rebuilds free-form text from the remaining tokens.
func joinRest(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
