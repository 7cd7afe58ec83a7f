package extract

import (
	"regexp"

	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// typePattern is one regular expression contributing evidence that a unit
// of text belongs to a given MemoryType.
type typePattern struct {
	re         *regexp.Regexp
	memoryType types.MemoryType
}

// typePatterns lists classification patterns in priority order: earlier
// entries win when a unit matches more than one memory type, per
// types.MemoryTypePriority.
var typePatterns = []typePattern{
	// SEMANTIC — durable facts, preferences stated as facts, definitions.
	{regexp.MustCompile(`(?i)\b(is|are|was|were)\s+(a|an|the)\b`), types.MemoryTypeSemantic},
	{regexp.MustCompile(`(?i)\b(always|never)\s+use[sd]?\b`), types.MemoryTypeSemantic},
	{regexp.MustCompile(`(?i)\bthe\s+\w+\s+(is|uses|runs on|lives in|lives at)\b`), types.MemoryTypeSemantic},

	// PROCEDURAL — how-to / step-based knowledge.
	{regexp.MustCompile(`(?i)\bto\s+\w+,?\s+(first|you (need to|must|should))\b`), types.MemoryTypeProcedural},
	{regexp.MustCompile(`(?i)\bstep\s+\d+\b`), types.MemoryTypeProcedural},
	{regexp.MustCompile(`(?i)\brun\s+` + "`" + `?[\w.\-/]+` + "`" + `?\s+to\b`), types.MemoryTypeProcedural},

	// PREFERENCE — explicit likes/dislikes/choices.
	{regexp.MustCompile(`(?i)\bI\s+(prefer|like|love|hate|dislike|want)\b`), types.MemoryTypePreference},
	{regexp.MustCompile(`(?i)\b(please|always)\s+(use|avoid)\b`), types.MemoryTypePreference},

	// EPISODIC — a dated event / something that happened.
	{regexp.MustCompile(`(?i)\b(yesterday|today|last (week|month|night)|on \w+day)\b`), types.MemoryTypeEpisodic},
	{regexp.MustCompile(`(?i)\bwe\s+(decided|discussed|met|shipped|deployed|fixed)\b`), types.MemoryTypeEpisodic},

	// WORKING — short-lived task/context state.
	{regexp.MustCompile(`(?i)\b(currently|right now|at the moment)\s+working on\b`), types.MemoryTypeWorking},
	{regexp.MustCompile(`(?i)\bin progress\b`), types.MemoryTypeWorking},

	// SENSORY — raw, very short-lived observations.
	{regexp.MustCompile(`(?i)\b(looks like|sounds like|smells like|feels like)\b`), types.MemoryTypeSensory},
}

// updateMarkerPatterns match cue phrases signalling the speaker is
// correcting a previously stated fact.
var updateMarkerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*actually\b`),
	regexp.MustCompile(`(?i)\bcorrection:`),
	regexp.MustCompile(`(?i)\bI meant\b`),
	regexp.MustCompile(`(?i)^\s*sorry\b`),
	regexp.MustCompile(`(?i)\blet me correct that\b`),
	regexp.MustCompile(`(?i)^\s*no,`),
	regexp.MustCompile(`(?i)^\s*wait,`),
	regexp.MustCompile(`(?i)\bnot\s+\w+,?\s+(but|rather)\b`),
}

// entityPattern extracts one entity type, keyed by a priority-ordered
// capture group (group 1, unless noted).
type entityPattern struct {
	entityType string
	re         *regexp.Regexp
}

var entityPatterns = []entityPattern{
	{"programming_language", regexp.MustCompile(`\b(Python|JavaScript|TypeScript|Java|C\+\+|C#|F#|VB\.NET|Rust|Go|Kotlin|Ruby|Swift|PHP|Scala|Elixir)\b`)},
	{"technology", regexp.MustCompile(`\b(React|Vue\.js|Vue|Angular|Django|Flask|FastAPI|Spring Boot|Express\.js|Docker|Kubernetes|Jenkins|GitHub Actions|GitHub|PostgreSQL|Redis|Kafka|gRPC)\b`)},
	{"person", regexp.MustCompile(`\b([A-Z][a-z]+\s[A-Z][a-z]+)\b`)},
	{"organization", regexp.MustCompile(`\b([A-Z][a-zA-Z]*\s(?:Inc|Corp|LLC|Ltd|Foundation))\b`)},
	{"file", regexp.MustCompile(`\b([\w\-./]+\.(go|py|js|ts|java|rb|md|yaml|yml|json|toml))\b`)},
	{"url", regexp.MustCompile(`\b(https?://[^\s]+)\b`)},
	{"email", regexp.MustCompile(`\b([\w.+-]+@[\w-]+\.[\w.-]+)\b`)},
	{"version", regexp.MustCompile(`\b(v?\d+\.\d+(?:\.\d+)?)\b`)},
	{"date", regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)},
	{"compound_entity", regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+){1,3})\b`)},
}

// salienceCueWords bump importance when present: strong, unambiguous
// commitments a user wants remembered.
var salienceCueWords = []string{"always", "never", "critical", "important", "must", "required"}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "for": true, "with": true,
	"i": true, "we": true, "you": true, "it": true, "this": true, "that": true,
	"at": true, "by": true, "as": true, "from": true,
}
