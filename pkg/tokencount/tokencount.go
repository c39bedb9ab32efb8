// Package tokencount estimates token counts for prompt budgeting.
package tokencount

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Estimator approximates the number of model tokens a string consumes.
type Estimator interface {
	Estimate(s string) int
}

// Heuristic estimates tokens as ceil(len(s) / 4), a cheap provider-agnostic
// approximation that needs no vocabulary files.
type Heuristic struct{}

// NewHeuristic creates a Heuristic estimator.
func NewHeuristic() Heuristic { return Heuristic{} }

// Estimate returns ceil(len(s) / 4).
func (Heuristic) Estimate(s string) int {
	return (len(s) + 3) / 4
}

// Tiktoken estimates tokens using the cl100k_base encoding. More accurate
// than Heuristic but pays the cost of real tokenization on every call.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken creates a Tiktoken estimator using the cl100k_base encoding.
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("tokencount: get encoding: %w", err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Estimate returns the exact cl100k_base token count of s.
func (t *Tiktoken) Estimate(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}
