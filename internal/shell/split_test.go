package shell

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain words", "case list", []string{"case", "list"}},
		{"double quotes", `case -n "two words"`, []string{"case", "-n", "two words"}},
		{"single quotes", "case -n 'two words'", []string{"case", "-n", "two words"}},
		{"single quote inside double", `echo "it's fine"`, []string{"echo", "it's fine"}},
		{"escaped space", `hash my\ file.bin`, []string{"hash", "my file.bin"}},
		{"escaped quotes", `echo \"hi\"`, []string{"echo", `"hi"`}},
		{"empty quoted token", `case -n ""`, []string{"case", "-n", ""}},
		{"adjacent quoted parts", `echo a"b c"d`, []string{"echo", "ab cd"}},
		{"collapsed whitespace", "  a \t b  ", []string{"a", "b"}},
		{"trailing backslash stays literal", `echo one\`, []string{"echo", `one\`}},
		{"empty", "", nil},
		{"spaces only", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.in)
			if err != nil {
				t.Fatalf("Split(%q) error: %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Split(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestSplitUnterminatedQuote(t *testing.T) {
	for _, in := range []string{`case -n "half`, "echo 'half", `echo "a'b`} {
		if _, err := Split(in); !errors.Is(err, ErrUnterminatedQuote) {
			t.Errorf("Split(%q) = %v, want ErrUnterminatedQuote", in, err)
		}
	}
}
