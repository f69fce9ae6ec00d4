package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alecthomas/kong"

	"github.com/fystack/storage-inspector/pkg/common/constant"
	"github.com/fystack/storage-inspector/pkg/common/logger"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

type CLI struct {
	Decode      DecodeCmd      `cmd:"" help:"Decode a storage array of a configured contract."`
	Slots       SlotsCmd       `cmd:"" help:"Derive array and element slots without touching a node."`
	NATSPrinter NATSPrinterCmd `cmd:"" name:"nats-printer" help:"Print published snapshots."`
	Version     VersionCmd     `cmd:"" help:"Print the version."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("inspector"),
		kong.Description("Read Solidity storage arrays straight from raw storage slots."),
		kong.UsageOnError(),
		kong.Vars{
			"config":  constant.DefaultConfigPath,
			"subject": constant.DefaultSubject,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func initLogger(level string, debug, noColor bool) {
	lvl := logger.ParseLevel(level)
	if debug {
		lvl = slog.LevelDebug
	}
	logger.Init(&logger.Options{
		Level:      lvl,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	})
}
