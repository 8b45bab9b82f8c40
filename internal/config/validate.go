package config

import "fmt"

// Validate checks structural invariants the scheduler and chain runner
// rely on, returning one error naming the offending field.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("config: max_concurrent must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.WorktreesDir == "" {
		return fmt.Errorf("config: worktrees_dir must not be empty")
	}
	if c.CommentPrefix == "" {
		return fmt.Errorf("config: comment_prefix must not be empty")
	}

	for name, m := range c.Modes {
		if !m.IsChain() {
			continue
		}
		if _, ok := c.Chains[m.Chain]; !ok {
			return fmt.Errorf("config: mode %q references undefined chain %q", name, m.Chain)
		}
	}

	for name, chain := range c.Chains {
		if err := chain.validateBounded(name); err != nil {
			return err
		}
	}

	return nil
}

// validateBounded refuses a chain whose definition is unbounded: a
// chain with any loop_to but no max_loops cap has an unbounded product
// of step count and loop count.
func (c ChainConfig) validateBounded(name string) error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("config: chain %q has no steps", name)
	}
	hasLoop := false
	for i, step := range c.Steps {
		if step.LoopTo != nil {
			hasLoop = true
			if *step.LoopTo < 0 || *step.LoopTo >= len(c.Steps) {
				return fmt.Errorf("config: chain %q step %d loop_to %d out of range", name, i, *step.LoopTo)
			}
		}
	}
	if hasLoop && c.MaxLoops == 0 {
		return fmt.Errorf("config: chain %q has a loop_to but no max_loops bound; refusing an unbounded chain", name)
	}
	return nil
}
