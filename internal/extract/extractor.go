// Package extract implements the L2 Extractor: a deterministic,
// pattern-based pipeline that turns free text into candidate Memory
// records, with no LLM or network call involved.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// Config controls the extractor's length bounds and whether entity
// tagging runs.
type Config struct {
	MinMemoryLength        int
	MaxMemoryLength        int
	EnableEntityExtraction bool
}

// DefaultConfig returns the extractor defaults.
func DefaultConfig() Config {
	return Config{MinMemoryLength: 10, MaxMemoryLength: 1000, EnableEntityExtraction: true}
}

// Extractor is a stateless, pure transform from text to candidate
// memories; the same input always yields the same output.
type Extractor struct {
	cfg Config
}

// New builds an Extractor with cfg.
func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// sentenceEnd marks sentence boundaries. Go's regexp (RE2) has no
// lookbehind, so splitSentences keeps the terminating punctuation on the
// left-hand piece manually instead of matching it away.
var sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)

// Extract runs the full pipeline over content, returning zero or more
// candidate memories. It never panics and never raises: on any internal
// error it returns an empty slice, consistent with the extractor's
// "logged, not raised" error policy (errors are the caller's concern to
// log; this package has no logger dependency to keep it pure).
func (e *Extractor) Extract(content, sourceType string) []*types.Memory {
	units := splitUnits(content)
	var out []*types.Memory

	for _, unit := range units {
		normalized := types.NormalizeContent(unit)
		if len(normalized) < e.cfg.MinMemoryLength {
			continue
		}
		unit = truncateToMax(unit, e.cfg.MaxMemoryLength)

		memType := classify(unit)
		isUpdate := isUpdateMarker(unit)

		var entities, keywords []string
		if e.cfg.EnableEntityExtraction {
			entities = extractEntities(unit)
		}
		keywords = extractKeywords(unit)

		m := &types.Memory{
			Content:      strings.TrimSpace(unit),
			MemoryType:   memType,
			SourceType:   sourceType,
			Importance:   computeImportance(unit, memType, len(normalized)),
			Confidence:   1.0,
			Entities:     entities,
			Keywords:     keywords,
			UpdateMarker: isUpdate,
		}
		out = append(out, m)
	}
	return out
}

// splitUnits breaks content into trimmed, non-empty units: each line,
// further split into sentences.
func splitUnits(content string) []string {
	var units []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, sentence := range splitSentences(line) {
			sentence = strings.TrimSpace(sentence)
			if sentence != "" {
				units = append(units, sentence)
			}
		}
	}
	return units
}

func splitSentences(line string) []string {
	idxs := sentenceEnd.FindAllStringIndex(line, -1)
	if len(idxs) == 0 {
		return []string{line}
	}
	var out []string
	start := 0
	for _, m := range idxs {
		out = append(out, line[start:m[0]+1])
		start = m[1]
	}
	if start < len(line) {
		out = append(out, line[start:])
	}
	return out
}

// truncateToMax caps a single overlong unit at max bytes, cutting at the
// last space before max (or at max when there is none) so no word is
// cut in half. The text past the cut is dropped, not kept as a new unit.
func truncateToMax(unit string, max int) string {
	if max <= 0 || len(unit) <= max {
		return unit
	}
	cut := strings.LastIndexByte(unit[:max], ' ')
	if cut <= 0 {
		cut = max
	}
	return unit[:cut]
}

func classify(unit string) types.MemoryType {
	for _, tp := range typePatterns {
		if tp.re.MatchString(unit) {
			return tp.memoryType
		}
	}
	return types.MemoryTypeEpisodic
}

func isUpdateMarker(unit string) bool {
	for _, re := range updateMarkerPatterns {
		if re.MatchString(unit) {
			return true
		}
	}
	return false
}

// ExtractEntities tags entities in a short piece of text (typically a
// recall query) using the same patterns Extract uses over memory
// content. Exposed standalone since the Entity recall strategy needs to
// tag a query without running the whole extraction pipeline over it.
func ExtractEntities(text string) []string {
	return extractEntities(text)
}

// TypedEntity pairs an entity's surface text with the pattern family
// that matched it, the shape storage.MemoryStore.GetOrCreateEntity needs
// to persist it into the entity table.
type TypedEntity struct {
	Type string
	Text string
}

// ExtractTypedEntities runs the same tagging pass as ExtractEntities but
// keeps the entity type, for callers that need to materialize entities
// into the graph (the Memory Service facade wiring MENTIONS edges after
// a store), rather than just the flat text list Extract embeds on the
// candidate Memory.
func ExtractTypedEntities(text string) []TypedEntity {
	seen := map[string]bool{}
	var out []TypedEntity
	for _, ep := range entityPatterns {
		for _, match := range ep.re.FindAllStringSubmatch(text, -1) {
			entityText := match[1]
			normalized := strings.ToLower(strings.TrimSpace(entityText))
			if normalized == "" || len(normalized) <= 1 || stopWords[normalized] {
				continue
			}
			key := ep.entityType + ":" + normalized
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, TypedEntity{Type: ep.entityType, Text: entityText})
		}
	}
	return out
}

func extractEntities(unit string) []string {
	seen := map[string]bool{}
	var out []string
	for _, ep := range entityPatterns {
		for _, match := range ep.re.FindAllStringSubmatch(unit, -1) {
			text := match[1]
			normalized := strings.ToLower(strings.TrimSpace(text))
			if normalized == "" || len(normalized) <= 1 || stopWords[normalized] {
				continue
			}
			key := ep.entityType + ":" + normalized
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, text)
		}
	}
	sort.Strings(out)
	return out
}

func extractKeywords(unit string) []string {
	seen := map[string]bool{}
	var out []string
	for _, word := range strings.Fields(strings.ToLower(unit)) {
		word = strings.Trim(word, ".,!?;:'\"()")
		if len(word) <= 2 || stopWords[word] {
			continue
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
	}
	return out
}

// computeImportance combines the memory type's baseline salience, cue
// words that signal the user wants this remembered, and a length floor
// so near-minimum-length content never scores as maximally important.
func computeImportance(unit string, memType types.MemoryType, normalizedLen int) float64 {
	base := map[types.MemoryType]float64{
		types.MemoryTypeSemantic:   0.6,
		types.MemoryTypeProcedural: 0.55,
		types.MemoryTypePreference: 0.65,
		types.MemoryTypeEpisodic:   0.4,
		types.MemoryTypeWorking:    0.3,
		types.MemoryTypeSensory:    0.2,
	}[memType]

	lower := strings.ToLower(unit)
	for _, cue := range salienceCueWords {
		if strings.Contains(lower, cue) {
			base += 0.15
			break
		}
	}

	if normalizedLen < 20 {
		base -= 0.1
	}

	if base < 0 {
		base = 0
	}
	if base > 1.0 {
		base = 1.0
	}
	return base
}
