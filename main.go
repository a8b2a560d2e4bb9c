package main

import (
	"embed"

	"github.com/maxgio92/xtrace/pkg/cmd"
)

//go:embed output/*
var probeFS embed.FS

const probeObjPath = "output/xtrace.bpf.o"

func main() {
	// The object may be absent in a fresh checkout; commands that need
	// kernel probes surface that as a load error.
	probe, _ := probeFS.ReadFile(probeObjPath)

	cmd.Execute(probe)
}
