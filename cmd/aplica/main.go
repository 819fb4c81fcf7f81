package main

import (
	"aplica-pipeline/cmd/aplica/commands"
	"aplica-pipeline/lib/util/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()

	commands.Execute(ctx)
}
