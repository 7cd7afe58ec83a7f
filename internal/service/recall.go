package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuzu-memory/kuzu-memory/internal/errs"
	"github.com/kuzu-memory/kuzu-memory/internal/recall"
	"github.com/kuzu-memory/kuzu-memory/internal/storage"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// RecallFilters narrows a recall/attach call to a scope, mirroring
// storage.ListFilter's fields without exposing that package's pagination
// knobs the facade doesn't need.
type RecallFilters struct {
	AgentID    string
	UserID     string
	SessionID  string
	MemoryType types.MemoryType
}

func (f RecallFilters) toListFilter() storage.ListFilter {
	return storage.ListFilter{
		AgentID:    f.AgentID,
		UserID:     f.UserID,
		SessionID:  f.SessionID,
		MemoryType: f.MemoryType,
	}
}

// Recall runs a strategy-driven search for query and returns up to
// maxMemories ranked results. maxMemories==0 short-circuits to an empty,
// zero-cost context without invoking the recall strategies at all. A
// positive maxMemories smaller than the recaller's own configured
// ceiling tightens the result further; it can never loosen it, since the
// recaller's own MaxMemories is the hard ceiling the cache is keyed on.
func (s *Service) Recall(ctx context.Context, query string, maxMemories int, strategy string, filters RecallFilters) (*recall.MemoryContext, error) {
	if maxMemories == 0 {
		return &recall.MemoryContext{OriginalPrompt: query, EnhancedPrompt: query}, nil
	}

	mc, err := s.recaller.Recall(ctx, query, filters.toListFilter(), strategy)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "service.Recall", err)
	}

	if maxMemories > 0 && maxMemories < len(mc.Memories) {
		mc.Memories = mc.Memories[:maxMemories]
	}
	return mc, nil
}

// AttachMemories runs Recall and composes the enhanced prompt from its
// result, returning the same MemoryContext the caller can also inspect
// for the raw ranked memories behind the composition.
func (s *Service) AttachMemories(ctx context.Context, prompt string, maxMemories int, strategy string, filters RecallFilters) (*recall.MemoryContext, error) {
	mc, err := s.Recall(ctx, prompt, maxMemories, strategy, filters)
	if err != nil {
		return nil, err
	}
	mc.OriginalPrompt = prompt
	mc.EnhancedPrompt = composeEnhancedPrompt(prompt, mc.Memories)
	return mc, nil
}

// composeEnhancedPrompt is a pure function: a header listing the ranked,
// type-tagged recalled facts, followed by the original prompt verbatim.
// An empty memory list returns prompt unchanged, never a header with no
// body.
func composeEnhancedPrompt(prompt string, memories []*types.Memory) string {
	if len(memories) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "- [%s] %s\n", m.MemoryType, m.Content)
	}
	b.WriteString("\n")
	b.WriteString(prompt)
	return b.String()
}
