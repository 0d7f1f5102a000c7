package app

import (
	"testing"
)

func TestParseCommand_DefaultsToScrape(t *testing.T) {
	cmd := ParseCommand([]string{})
	if cmd != CommandScrape {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandScrape)
	}
}

func TestParseCommand_Scrape(t *testing.T) {
	cmd := ParseCommand([]string{"scrape"})
	if cmd != CommandScrape {
		t.Errorf("ParseCommand([scrape]) = %q, want %q", cmd, CommandScrape)
	}
}

func TestParseCommand_Migrate(t *testing.T) {
	cmd := ParseCommand([]string{"migrate"})
	if cmd != CommandMigrate {
		t.Errorf("ParseCommand([migrate]) = %q, want %q", cmd, CommandMigrate)
	}
}

func TestParseCommand_Review(t *testing.T) {
	cmd := ParseCommand([]string{"review"})
	if cmd != CommandReview {
		t.Errorf("ParseCommand([review]) = %q, want %q", cmd, CommandReview)
	}
}

func TestParseCommand_Serve(t *testing.T) {
	cmd := ParseCommand([]string{"serve"})
	if cmd != CommandServe {
		t.Errorf("ParseCommand([serve]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_UnknownDefaultsToScrape(t *testing.T) {
	cmd := ParseCommand([]string{"unknown"})
	if cmd != CommandScrape {
		t.Errorf("ParseCommand([unknown]) = %q, want %q", cmd, CommandScrape)
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	cmd := ParseCommand([]string{"review", "--flag", "value"})
	if cmd != CommandReview {
		t.Errorf("ParseCommand([review --flag value]) = %q, want %q", cmd, CommandReview)
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{CommandScrape, "scrape"},
		{CommandMigrate, "migrate"},
		{CommandReview, "review"},
		{CommandServe, "serve"},
		{CommandHealthcheck, "healthcheck"},
	}

	for _, tt := range tests {
		if got := string(tt.cmd); got != tt.want {
			t.Errorf("string(%v) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}
