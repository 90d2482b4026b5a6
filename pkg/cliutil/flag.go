package cliutil

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Choice is a pflag.Value that accepts one of a fixed set of strings, and
// rejects everything else at parse time.  The help text shows the set as
// the value placeholder.
type Choice struct {
	Value   string
	Choices []string
}

var _ pflag.Value = (*Choice)(nil)

func (c *Choice) String() string { return c.Value }

func (c *Choice) Set(str string) error {
	for _, choice := range c.Choices {
		if str == choice {
			c.Value = str
			return nil
		}
	}
	return fmt.Errorf("must be one of %q", c.Choices)
}

func (c *Choice) Type() string {
	ret := ""
	for i, choice := range c.Choices {
		if i > 0 {
			ret += "|"
		}
		ret += choice
	}
	return ret
}
