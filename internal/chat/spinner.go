package chat

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// NewSpinner returns the terminal "thinking" indicator. The spinner library
// stays silent when w is not a terminal.
func NewSpinner(w io.Writer) Indicator {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = "\t\tI'm thinking"
	return s
}
