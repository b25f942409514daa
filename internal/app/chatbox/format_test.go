package chatbox

import (
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  Message
		found bool
	}{
		{name: "ascii ellipsis", in: "A.B...C", want: Message{"A.B", "...", "C"}, found: true},
		{name: "no delimiter", in: "no delimiter here", found: false},
		{name: "empty confirmed side", in: "...leading", found: false},
		{name: "empty unconfirmed side", in: "trailing...", found: false},
		{name: "blank unconfirmed side", in: "trailing...   \n", found: false},
		{name: "cjk ellipsis", in: "前半……后半", want: Message{"前半", "……", "后半"}, found: true},
		{
			name:  "last delimiter wins",
			in:    "one... two ... three  \n four",
			want:  Message{"one... two", "...", "three four"},
			found: true,
		},
		{
			name:  "ascii preferred over cjk",
			in:    "a……b...c",
			want:  Message{"a……b", "...", "c"},
			found: true,
		},
		{name: "empty", in: "", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Split(tt.in)
			if ok != tt.found {
				t.Fatalf("Split(%q) found = %v, want %v", tt.in, ok, tt.found)
			}
			if ok && got != tt.want {
				t.Fatalf("Split(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplit_UnconfirmedIsSingleLine(t *testing.T) {
	inputs := []string{
		"done... still\ngoing\r\non",
		"x ... a\t\tb\n\nc",
		"前……后\n半",
		"a...b\n...c\nd",
	}
	for _, in := range inputs {
		msg, ok := Split(in)
		if !ok {
			t.Fatalf("Split(%q) found no delimiter", in)
		}
		if strings.Contains(msg.Unconfirmed, "\n") {
			t.Fatalf("Split(%q) unconfirmed %q contains a line break", in, msg.Unconfirmed)
		}
	}
}

func TestInsertSentenceBreaks(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello. World", "Hello.\nWorld"},
		{"Pi is 3.14 today", "Pi is 3.14 today"},
		{"see example.com now", "see example.com now"},
		{"Wait... what", "Wait... what"},
		{"你好。世界", "你好。\n世界"},
		{"Really?! Yes", "Really?\n!\nYes"},
		{"Done.\nNext", "Done.\nNext"},
		{`He said "go." Then left`, "He said \"go.\n\" Then left"},
		{"End.", "End.\n"},
		{"a\r\nb. c", "a\nb.\nc"},
	}
	for _, tt := range tests {
		if got := InsertSentenceBreaks(tt.in); got != tt.want {
			t.Errorf("InsertSentenceBreaks(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		lineBreaks bool
		want       string
	}{
		{name: "disabled passes through", in: "Hello. World ... typing", lineBreaks: false, want: "Hello. World ... typing"},
		{name: "plain sentences", in: "Hello. World!", lineBreaks: true, want: "Hello.\nWorld!\n"},
		{name: "single sentence keeps final break", in: "Hello.", lineBreaks: true, want: "Hello.\n"},
		{name: "no ender", in: "Hello there", lineBreaks: true, want: "Hello there"},
		{
			name:       "confirmed and unconfirmed",
			in:         "First sentence. Second one ... still   typing",
			lineBreaks: true,
			want:       "First sentence.\nSecond one...\nstill typing",
		},
		{
			name:       "bracketed stash kept on one line",
			in:         "Done. Next ... [partial  text. here]",
			lineBreaks: true,
			want:       "Done.\nNext...\n[partial text. here]",
		},
		{
			name:       "brackets protect inner delimiter",
			in:         "Okay. [a ... b]",
			lineBreaks: true,
			want:       "Okay.\n[a ... b]",
		},
		{
			name:       "cjk delimiter",
			in:         "你好。今天……天气",
			lineBreaks: true,
			want:       "你好。\n今天……\n天气",
		},
		{name: "empty", in: "", lineBreaks: true, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.in, tt.lineBreaks); got != tt.want {
				t.Fatalf("Format(%q, %v) = %q, want %q", tt.in, tt.lineBreaks, got, tt.want)
			}
		})
	}
}

func TestRender_BoundsFormattedText(t *testing.T) {
	long := strings.Repeat("This is a sentence. ", 20) + "Latest ... [in progress]"
	got := Render(long, true, MaxLength)
	if n := len([]rune(got)); n > MaxLength {
		t.Fatalf("Render length = %d, want <= %d", n, MaxLength)
	}
	if !strings.HasSuffix(got, "Latest...\n[in progress]") {
		t.Fatalf("Render lost the newest content: %q", got)
	}
}
