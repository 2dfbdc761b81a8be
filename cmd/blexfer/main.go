package main

import (
	"github.com/alecthomas/kong"

	"github.com/vitaminmoo/blexfer/internal/cli"
)

func main() {
	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("blexfer"),
		kong.Description("Decode BLE advertisements and push files through GATT writes."),
		kong.UsageOnError(),
		cli.Vars(),
	)
	err := ctx.Run(&c)
	ctx.FatalIfErrorf(err)
}
