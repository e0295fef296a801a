package ai

import (
	"strings"
	"testing"

	"walter-bot/internal/model"
)

var sampleEvents = []model.HistoryEvent{
	{Kind: "event", Year: "1666", Description: "The Great Fire of London began in a bakery on Pudding Lane"},
	{Kind: "birth", Year: "1564", Description: "William Shakespeare was born"},
}

func TestBuildPromptIncludesEvents(t *testing.T) {
	for _, style := range promptStyles {
		p := buildPrompt(sampleEvents, style)
		if !strings.Contains(p, "1. In 1666, The Great Fire of London began in a bakery on Pudding Lane") {
			t.Errorf("style %s: first event missing from prompt", style)
		}
		if !strings.Contains(p, "2. In 1564, William Shakespeare was born") {
			t.Errorf("style %s: second event missing from prompt", style)
		}
		if !strings.Contains(p, "📜 **On This Day in History**") {
			t.Errorf("style %s: required opening line missing from prompt", style)
		}
	}
}

func TestBuildPromptUnknownStyleDefaults(t *testing.T) {
	if got, want := buildPrompt(sampleEvents, "nosuch"), buildPrompt(sampleEvents, "standard"); got != want {
		t.Error("unknown style must fall back to the standard prompt")
	}
}

func TestFallback(t *testing.T) {
	got := Fallback(sampleEvents)
	if !strings.HasPrefix(got, "📜 **On This Day in History**") {
		t.Error("fallback must open with the post header")
	}
	if !strings.Contains(got, "• In 1666, The Great Fire of London began in a bakery on Pudding Lane") {
		t.Error("fallback must list each event")
	}
	if !strings.HasSuffix(got, "_The muse declined to comment this morning._") {
		t.Error("fallback must close with the muse line")
	}
}
