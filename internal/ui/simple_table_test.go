package ui

import (
	"strings"
	"testing"
)

func TestSimpleTable(t *testing.T) {
	table := NewSimpleTable("Command History", []string{"Num", "Command"})
	table.AddRow("1", "ipcheck 8.8.8.8")

	styles := NewStyles(LightTheme())
	view := table.View(styles)

	t.Logf("View:\n%q", view)

	if !strings.Contains(view, "Command History") {
		t.Error("View missing title")
	}
	if !strings.Contains(view, "ipcheck 8.8.8.8") {
		t.Error("View missing cell content")
	}
	if !strings.Contains(view, "Num") {
		t.Error("View missing header")
	}
}

func TestSimpleTableEmpty(t *testing.T) {
	table := NewSimpleTable("Empty", []string{"A"})
	if view := table.View(NewStyles(LightTheme())); view != "" {
		t.Errorf("empty table should render nothing, got %q", view)
	}
}
