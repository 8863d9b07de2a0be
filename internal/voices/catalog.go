// Package voices holds the catalog of prebuilt voices offered for speech
// synthesis and live sessions, with optional overrides from a YAML file.
package voices

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Voice describes one selectable prebuilt voice.
type Voice struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Tone        string `json:"tone,omitempty" yaml:"tone,omitempty"`
}

// builtin is the default catalog of hosted prebuilt voices.
var builtin = []Voice{
	{Name: "Aoede", Description: "Breezy, natural delivery", Tone: "warm"},
	{Name: "Charon", Description: "Informative, low register", Tone: "calm"},
	{Name: "Fenrir", Description: "Excitable, energetic", Tone: "bright"},
	{Name: "Kore", Description: "Firm, confident", Tone: "neutral"},
	{Name: "Leda", Description: "Youthful, light", Tone: "bright"},
	{Name: "Orus", Description: "Assured, deliberate", Tone: "calm"},
	{Name: "Puck", Description: "Upbeat, playful", Tone: "bright"},
	{Name: "Zephyr", Description: "Soft, even pacing", Tone: "warm"},
}

// Catalog is an immutable, name-indexed voice set.
type Catalog struct {
	voices []Voice
	byName map[string]Voice
}

type overlayFile struct {
	Voices []Voice `yaml:"voices"`
}

// Load builds the catalog from the built-in set, overlaid with the YAML file
// at path when non-empty. Overlay entries with a known name replace the
// built-in entry; new names are appended.
func Load(path string) (*Catalog, error) {
	merged := append([]Voice(nil), builtin...)

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read voices file: %w", err)
		}
		var overlay overlayFile
		if err := yaml.Unmarshal(raw, &overlay); err != nil {
			return nil, fmt.Errorf("parse voices file: %w", err)
		}
		for _, v := range overlay.Voices {
			v.Name = strings.TrimSpace(v.Name)
			if v.Name == "" {
				continue
			}
			replaced := false
			for i := range merged {
				if strings.EqualFold(merged[i].Name, v.Name) {
					merged[i] = v
					replaced = true
					break
				}
			}
			if !replaced {
				merged = append(merged, v)
			}
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })

	byName := make(map[string]Voice, len(merged))
	for _, v := range merged {
		byName[strings.ToLower(v.Name)] = v
	}
	return &Catalog{voices: merged, byName: byName}, nil
}

// List returns all voices sorted by name.
func (c *Catalog) List() []Voice {
	return append([]Voice(nil), c.voices...)
}

// Resolve maps a requested voice name to a catalog entry, falling back to
// fallback when the request is empty or unknown.
func (c *Catalog) Resolve(requested, fallback string) Voice {
	if v, ok := c.byName[strings.ToLower(strings.TrimSpace(requested))]; ok {
		return v
	}
	if v, ok := c.byName[strings.ToLower(strings.TrimSpace(fallback))]; ok {
		return v
	}
	return c.voices[0]
}

// Has reports whether name is in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
