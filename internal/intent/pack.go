package intent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is a per-locale keyword list. Packs are plain data so wording changes
// ship without a code change; files are YAML, one pack per file.
//
// All keywords are matched lower-cased; loaders normalize on read.
type Pack struct {
	Locale    string   `yaml:"locale"`
	Confirmed []string `yaml:"confirmed"`
	Cancelled []string `yaml:"cancelled"`
	Completed []string `yaml:"completed"`
	Started   []string `yaml:"started"`
	NeedsInfo []string `yaml:"needs_info"`
}

func (p Pack) keywords(in Intent) []string {
	switch in {
	case IntentConfirmed:
		return p.Confirmed
	case IntentCancelled:
		return p.Cancelled
	case IntentCompleted:
		return p.Completed
	case IntentStarted:
		return p.Started
	case IntentNeedsInfo:
		return p.NeedsInfo
	default:
		return nil
	}
}

func (p Pack) normalized() Pack {
	norm := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	p.Confirmed = norm(p.Confirmed)
	p.Cancelled = norm(p.Cancelled)
	p.Completed = norm(p.Completed)
	p.Started = norm(p.Started)
	p.NeedsInfo = norm(p.NeedsInfo)
	return p
}

// DefaultPacks returns the built-in Spanish and English keyword lists.
// Note "listo" lives in the completed list even though callers sometimes use
// it as an acknowledgment; priority order keeps the outcome deterministic.
func DefaultPacks() []Pack {
	return []Pack{
		{
			Locale:    "es",
			Confirmed: []string{"sí", "confirmo", "confirmado", "de acuerdo", "dale", "claro", "por supuesto", "acepto"},
			Cancelled: []string{"cancelar", "cancelo", "cancelado", "no puedo", "no quiero", "ya no", "olvidalo"},
			Completed: []string{"listo", "terminado", "terminé", "termine", "completado", "finalizado", "ya está", "ya esta"},
			Started:   []string{"empecé", "empece", "comenzé", "comence", "en camino", "en curso", "trabajando en", "ya voy"},
			NeedsInfo: []string{"información", "informacion", "cuándo", "cuando", "dónde", "donde", "cómo", "duda", "pregunta"},
		},
		{
			Locale:    "en",
			Confirmed: []string{"yes", "confirm", "confirmed", "sure", "sounds good", "ok"},
			Cancelled: []string{"cancel", "cancelled", "canceled", "can't make it", "not anymore"},
			Completed: []string{"done", "finished", "completed", "all set"},
			Started:   []string{"started", "on my way", "in progress", "working on"},
			NeedsInfo: []string{"when", "where", "how", "more info", "question", "details"},
		},
	}
}

// LoadPacks reads every *.yml / *.yaml file in dir as one Pack.
// Files are loaded in name order so pack precedence is stable.
func LoadPacks(dir string) ([]Pack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("intent: read pack dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yml" || ext == ".yaml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	packs := make([]Pack, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("intent: read pack %s: %w", name, err)
		}
		var p Pack
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("intent: parse pack %s: %w", name, err)
		}
		if p.Locale == "" {
			return nil, fmt.Errorf("intent: pack %s has no locale", name)
		}
		packs = append(packs, p.normalized())
	}
	if len(packs) == 0 {
		return nil, fmt.Errorf("intent: no packs in %s", dir)
	}
	return packs, nil
}
