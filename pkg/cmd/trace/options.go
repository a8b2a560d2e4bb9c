package trace

import (
	"github.com/maxgio92/xtrace/pkg/cmd/options"
)

type Options struct {
	pid          int
	duration     int
	outputFormat string
	status       bool

	*options.CommonOptions
}
