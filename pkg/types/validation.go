package types

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyContent is returned when a memory's content is empty or
	// whitespace-only after normalization.
	ErrEmptyContent = errors.New("types: memory content is empty")
	// ErrContentTooShort is returned when content falls below the
	// configured minimum memory length.
	ErrContentTooShort = errors.New("types: memory content too short")
	// ErrInvalidImportance is returned when Importance falls outside [0,1].
	ErrInvalidImportance = errors.New("types: importance must be in [0,1]")
	// ErrInvalidConfidence is returned when Confidence falls outside [0,1].
	ErrInvalidConfidence = errors.New("types: confidence must be in [0,1]")
	// ErrInvalidMemoryType is returned for a memory_type outside the closed enum.
	ErrInvalidMemoryType = errors.New("types: unknown memory type")
)

// NormalizeContent lowercases and collapses internal whitespace, the same
// transform used to compute ContentHash, so two memories that differ only
// in casing or spacing hash identically.
func NormalizeContent(content string) string {
	fields := strings.Fields(strings.ToLower(content))
	return strings.Join(fields, " ")
}

// Validate checks the structural invariants a Memory must satisfy before
// it can be persisted, independent of any storage-layer uniqueness check.
func (m *Memory) Validate(minLength int) error {
	normalized := NormalizeContent(m.Content)
	if normalized == "" {
		return ErrEmptyContent
	}
	if minLength > 0 && len(normalized) < minLength {
		return ErrContentTooShort
	}
	if m.Importance < 0 || m.Importance > 1 {
		return ErrInvalidImportance
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return ErrInvalidConfidence
	}
	if !IsValidMemoryType(m.MemoryType) {
		return ErrInvalidMemoryType
	}
	if m.ValidTo != nil && !m.ValidTo.After(m.ValidFrom) {
		return errors.New("types: valid_to must be after valid_from")
	}
	if m.ValidFrom.After(m.CreatedAt) {
		return errors.New("types: valid_from must not be after created_at")
	}
	return nil
}
