package main

import (
	"github.com/robotalks/eda.go/pkg/cli/sh"

	_ "github.com/robotalks/eda.go/pkg/cli/cmds/record"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
