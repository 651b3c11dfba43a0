package policy

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Strategy selects a masking implementation. The set is closed; unknown tags
// are rejected when a policy is validated, not at masking time.
type Strategy string

const (
	// StrategyNullRewrite replaces the value with nil.
	StrategyNullRewrite Strategy = "null_rewrite"
	// StrategyStringRewrite replaces the value with a fixed literal.
	StrategyStringRewrite Strategy = "string_rewrite"
	// StrategyHash replaces the value with a salted xxh3 digest.
	StrategyHash Strategy = "hash"
)

// Masker rewrites one value per the selected strategy.
type Masker interface {
	Mask(v any) any
}

// NewMasker returns the masker for s, configured from the rule. Unknown
// strategies are an error.
func NewMasker(s Strategy, r Rule) (Masker, error) {
	switch s {
	case StrategyNullRewrite:
		return nullMasker{}, nil
	case StrategyStringRewrite:
		return stringMasker{replacement: r.Replacement}, nil
	case StrategyHash:
		return hashMasker{salt: r.Salt}, nil
	default:
		return nil, fmt.Errorf("policy: unknown masking strategy %q", s)
	}
}

type nullMasker struct{}

func (nullMasker) Mask(any) any { return nil }

type stringMasker struct{ replacement string }

func (m stringMasker) Mask(any) any {
	if m.replacement == "" {
		return "MASKED"
	}
	return m.replacement
}

type hashMasker struct{ salt string }

func (m hashMasker) Mask(v any) any {
	if v == nil {
		return nil
	}
	sum := xxh3.HashString(m.salt + fmt.Sprint(v))
	return fmt.Sprintf("%016x", sum)
}
