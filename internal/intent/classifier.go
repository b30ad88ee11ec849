package intent

import (
	"strings"
	"sync"
)

// Classifier maps free-form reply text to an Intent using keyword containment.
//
// Matching rules:
// - the text is normalized (trimmed, lower-cased) before matching
// - intents are tested in the fixed priority order; first match wins
// - a keyword matches on substring containment, not whole words; this mirrors
//   the behavior replies have been classified with historically
//
// Keyword lists are data (see Pack); swapping packs never changes the
// algorithm or the priority order.
type Classifier struct {
	mu    sync.RWMutex
	packs []Pack
}

func NewClassifier(packs ...Pack) *Classifier {
	if len(packs) == 0 {
		packs = DefaultPacks()
	}
	return &Classifier{packs: packs}
}

// Classify returns the first intent, in priority order, with a keyword
// contained in the normalized text. Unmatched text is IntentUnknown.
func (c *Classifier) Classify(text string) Intent {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return IntentUnknown
	}

	c.mu.RLock()
	packs := c.packs
	c.mu.RUnlock()

	for _, in := range priority {
		for _, p := range packs {
			for _, kw := range p.keywords(in) {
				if kw == "" {
					continue
				}
				if strings.Contains(norm, kw) {
					return in
				}
			}
		}
	}
	return IntentUnknown
}

// Replace swaps the active language packs. Safe for concurrent use with
// Classify, so packs can be hot-reloaded without a restart.
func (c *Classifier) Replace(packs []Pack) {
	if len(packs) == 0 {
		return
	}
	c.mu.Lock()
	c.packs = packs
	c.mu.Unlock()
}

// Locales returns the locales of the active packs, in load order.
func (c *Classifier) Locales() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.packs))
	for _, p := range c.packs {
		out = append(out, p.Locale)
	}
	return out
}
