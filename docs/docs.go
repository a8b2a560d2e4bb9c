//go:build docs

package main

import (
	"fmt"
	"os"
	"path"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra/doc"

	"github.com/maxgio92/xtrace/internal/settings"
	"github.com/maxgio92/xtrace/pkg/cmd"
	"github.com/maxgio92/xtrace/pkg/cmd/options"
)

const docsDir = "docs"

var linkHandler = func(filename string) string {
	if filename == settings.CmdName+".md" {
		// This is the root command.
		return "README.md"
	}
	return path.Join(docsDir, filename)
}

func main() {
	root := cmd.NewCommand(options.NewCommonOptions(
		options.WithLogger(log.New(os.Stderr).Level(log.InfoLevel)),
	))

	if err := doc.GenMarkdownTreeCustom(
		root,
		docsDir,
		func(string) string { return "" },
		linkHandler,
	); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
