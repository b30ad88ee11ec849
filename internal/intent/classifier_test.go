package intent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassify_NormalizesAndMatches(t *testing.T) {
	c := NewClassifier()

	if got := c.Classify("  Sí, gracias  "); got != IntentConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", got)
	}
	if got := c.Classify("YA ESTÁ LISTO"); got != IntentCompleted {
		t.Fatalf("expected COMPLETED, got %s", got)
	}
	if got := c.Classify("en camino, llego en 10"); got != IntentStarted {
		t.Fatalf("expected STARTED, got %s", got)
	}
	if got := c.Classify("¿cuándo sería?"); got != IntentNeedsInfo {
		t.Fatalf("expected NEEDS_INFO, got %s", got)
	}
	if got := c.Classify("mmm"); got != IntentUnknown {
		t.Fatalf("expected UNKNOWN, got %s", got)
	}
	if got := c.Classify(""); got != IntentUnknown {
		t.Fatalf("expected UNKNOWN for empty, got %s", got)
	}
}

func TestClassify_PriorityOrderIsFixed(t *testing.T) {
	c := NewClassifier()

	// Contains both a confirmation and a cancellation keyword. CONFIRMED is
	// checked before CANCELLED, so it must win.
	got := c.Classify("sí, pero quizá cancelar después")
	if got != IntentConfirmed {
		t.Fatalf("expected CONFIRMED to win over CANCELLED, got %s", got)
	}

	// Inverted check: without any confirmation keyword, CANCELLED wins over
	// later buckets even when their keywords are present too.
	got = c.Classify("mejor cancelar, ya estaba casi terminado")
	if got != IntentCancelled {
		t.Fatalf("expected CANCELLED to win over COMPLETED, got %s", got)
	}
}

func TestClassify_SubstringContainment(t *testing.T) {
	c := NewClassifier()

	// "confirmo" is contained in "confirmooo"; whole-word matching would miss it.
	if got := c.Classify("confirmooo!!"); got != IntentConfirmed {
		t.Fatalf("expected CONFIRMED via substring, got %s", got)
	}
}

func TestClassify_ListoStaysCompleted(t *testing.T) {
	// "listo" is ambiguous in practice (ack vs. done). It is pinned to the
	// completed list; this test documents the resolution.
	c := NewClassifier()
	if got := c.Classify("listo"); got != IntentCompleted {
		t.Fatalf("expected COMPLETED for 'listo', got %s", got)
	}
}

func TestLoadPacks_FromYAML(t *testing.T) {
	dir := t.TempDir()
	pack := []byte("locale: pt\nconfirmed: [\"sim\", \"Claro\"]\ncancelled: [\"cancelar\"]\ncompleted: [\"pronto\"]\nstarted: [\"a caminho\"]\nneeds_info: [\"quando\"]\n")
	if err := os.WriteFile(filepath.Join(dir, "pt.yaml"), pack, 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}

	packs, err := LoadPacks(dir)
	if err != nil {
		t.Fatalf("load packs: %v", err)
	}
	if len(packs) != 1 || packs[0].Locale != "pt" {
		t.Fatalf("unexpected packs: %+v", packs)
	}

	c := NewClassifier(packs...)
	if got := c.Classify("Sim, claro"); got != IntentConfirmed {
		t.Fatalf("expected CONFIRMED from loaded pack, got %s", got)
	}
	// Default keywords are gone after a replace with a different locale.
	if got := c.Classify("done"); got != IntentUnknown {
		t.Fatalf("expected UNKNOWN for untracked locale, got %s", got)
	}
}

func TestLoadPacks_RejectsMissingLocale(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yml"), []byte("confirmed: [\"yes\"]\n"), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	if _, err := LoadPacks(dir); err == nil {
		t.Fatalf("expected error for pack without locale")
	}
}

func TestReplace_HotSwapsPacks(t *testing.T) {
	c := NewClassifier()
	c.Replace([]Pack{{Locale: "xx", Confirmed: []string{"affirmative"}}})

	if got := c.Classify("affirmative"); got != IntentConfirmed {
		t.Fatalf("expected CONFIRMED after replace, got %s", got)
	}
	if got := c.Classify("sí"); got != IntentUnknown {
		t.Fatalf("expected old packs dropped, got %s", got)
	}
	if len(c.Locales()) != 1 || c.Locales()[0] != "xx" {
		t.Fatalf("unexpected locales: %v", c.Locales())
	}
}
