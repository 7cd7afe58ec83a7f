// Package dedup implements the L2 Deduplication Engine: given a
// candidate memory and the set of currently live memories, decide
// whether to store it, skip it as a duplicate, or treat it as an update
// to an existing memory.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// Action is the outcome of a dedup Decide call.
type Action string

const (
	ActionStore  Action = "store"
	ActionSkip   Action = "skip"
	ActionUpdate Action = "update"
)

// MatchType records which rule produced a Skip/Update decision, for
// diagnostics and the scenario tests in internal/service.
type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchNormalized MatchType = "normalized"
	MatchUpdate     MatchType = "update"
	MatchSemantic   MatchType = "semantic"
	MatchNone       MatchType = "none"
)

// Decision is the result of running the candidate through the priority
// chain below.
type Decision struct {
	Action     Action
	MatchType  MatchType
	MatchedID  string
	Similarity float64
}

// Config holds the dedup engine's tunable thresholds. Defaults match the
// spec's documented defaults exactly, since the similarity metric itself
// (token-set Jaccard) is an Open Question this codebase resolves and
// records in DESIGN.md rather than leaving unspecified.
type Config struct {
	NearThreshold          float64
	SemanticThreshold      float64
	UpdateSimilarityFloor  float64
	MinLengthForSimilarity int
	EnableUpdateDetection  bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		NearThreshold:          0.95,
		SemanticThreshold:      0.70,
		UpdateSimilarityFloor:  0.5,
		MinLengthForSimilarity: 10,
		EnableUpdateDetection:  true,
	}
}

// Engine runs the five-step priority chain from the spec: exact hash,
// near-duplicate, update, semantic overlap, else store.
type Engine struct {
	cfg Config
}

// New builds an Engine with cfg.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Decide runs candidate against existing, which must already be filtered
// to live (non-expired) memories: expired memories never match, per the
// spec's invariant.
func (e *Engine) Decide(candidate *types.Memory, existing []*types.Memory) Decision {
	candidateHash := candidate.ContentHash
	if candidateHash == "" {
		candidateHash = hashOf(candidate.Content)
	}
	candidateNorm := types.NormalizeContent(candidate.Content)

	if len(candidateNorm) < e.cfg.MinLengthForSimilarity {
		return Decision{Action: ActionStore, MatchType: MatchNone}
	}

	candidateTokens := tokenSet(candidateNorm)

	// 1. exact hash match
	for _, ex := range existing {
		exHash := ex.ContentHash
		if exHash == "" {
			exHash = hashOf(ex.Content)
		}
		if exHash == candidateHash {
			return Decision{Action: ActionSkip, MatchType: MatchExact, MatchedID: ex.ID, Similarity: 1.0}
		}
	}

	// 2. near-duplicate via token-set Jaccard similarity
	bestNear := struct {
		id  string
		sim float64
	}{}
	for _, ex := range existing {
		sim := jaccard(candidateTokens, tokenSet(types.NormalizeContent(ex.Content)))
		if sim > bestNear.sim {
			bestNear.sim = sim
			bestNear.id = ex.ID
		}
		if sim >= e.cfg.NearThreshold {
			return Decision{Action: ActionSkip, MatchType: MatchNormalized, MatchedID: ex.ID, Similarity: sim}
		}
	}

	// 3. update detection
	if e.cfg.EnableUpdateDetection && candidate.UpdateMarker && bestNear.id != "" && bestNear.sim >= e.cfg.UpdateSimilarityFloor {
		return Decision{Action: ActionUpdate, MatchType: MatchUpdate, MatchedID: bestNear.id, Similarity: bestNear.sim}
	}

	// 4. semantic overlap
	if bestNear.sim >= e.cfg.SemanticThreshold {
		return Decision{Action: ActionSkip, MatchType: MatchSemantic, MatchedID: bestNear.id, Similarity: bestNear.sim}
	}

	// 5. store
	return Decision{Action: ActionStore, MatchType: MatchNone, Similarity: bestNear.sim}
}

// Similarity computes the same token-set Jaccard metric Decide uses
// internally, exported for the maintenance passes that need to cluster
// memories by pairwise similarity outside the store/skip/update decision
// (cleanup's duplicate clustering, consolidation's candidate clustering).
func Similarity(a, b string) float64 {
	return jaccard(tokenSet(types.NormalizeContent(a)), tokenSet(types.NormalizeContent(b)))
}

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(types.NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}

func tokenSet(normalized string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(normalized) {
		tok = strings.TrimFunc(tok, unicode.IsPunct)
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

// jaccard computes |a ∩ b| / |a ∪ b| over token sets, returning 0 when
// both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
