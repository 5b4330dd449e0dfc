package services

import (
	"testing"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
)

func TestFormatPromptMessage(t *testing.T) {
	multi := &domain.PromptRecord{
		Theme:   "small wins",
		Prompts: domain.PromptList{"Name one win.", "Who helped?"},
	}
	got := FormatPromptMessage(multi)
	want := "Small Wins\n\n1. Name one win.\n2. Who helped?"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	single := &domain.PromptRecord{
		Theme:   "gratitude",
		Prompts: domain.PromptList{"What are you grateful for?"},
	}
	if got := FormatPromptMessage(single); got != "Gratitude\n\nWhat are you grateful for?" {
		t.Fatalf("single prompt: %q", got)
	}

	bare := &domain.PromptRecord{Prompts: domain.PromptList{"Just write."}}
	if got := FormatPromptMessage(bare); got != "Just write." {
		t.Fatalf("no theme: %q", got)
	}
}
