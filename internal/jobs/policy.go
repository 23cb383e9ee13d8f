package jobs

import (
	"fmt"
	"regexp"

	"github.com/smazurov/procstream/internal/process"
)

// ExitPolicy ends a run when an output line matches a pattern or when a line
// budget is used up. The zero value never asks to exit.
type ExitPolicy struct {
	pattern  *regexp.Regexp
	maxLines uint64
}

// NewExitPolicy compiles exitOn. An empty pattern and a zero maxLines disable
// the respective rule.
func NewExitPolicy(exitOn string, maxLines int) (*ExitPolicy, error) {
	if maxLines < 0 {
		return nil, fmt.Errorf("max_lines must not be negative: %d", maxLines)
	}
	p := &ExitPolicy{maxLines: uint64(maxLines)}
	if exitOn != "" {
		re, err := regexp.Compile(exitOn)
		if err != nil {
			return nil, fmt.Errorf("invalid exit_on pattern: %w", err)
		}
		p.pattern = re
	}
	return p, nil
}

// Check returns the update for output line number n. A pattern match carries
// the matching line back in the result.
func (p *ExitPolicy) Check(line string, n uint64) process.Update {
	if p == nil {
		return process.Continue()
	}
	if p.pattern != nil && p.pattern.MatchString(line) {
		return process.Exit().WithStrings(line)
	}
	if p.maxLines > 0 && n >= p.maxLines {
		return process.Exit()
	}
	return process.Continue()
}
