package profile

import (
	"github.com/maxgio92/xtrace/pkg/cmd/options"
)

type Options struct {
	pid       int
	frequency uint64
	duration  int
	top       int

	stack     bool
	symbolize bool
	status    bool

	*options.CommonOptions
}
