// packbench exercises the mesh packer and GPU culling on the software device.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "churn":
		err = cmdChurn(args)
	case "capacity", "cap":
		err = cmdCapacity(args)
	case "cull":
		err = cmdCull(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`packbench - mesh packer and GPU culling bench on the software device

Usage:
  packbench <command> [options]

Commands:
  churn     Random add/replace/remove traffic with periodic rebuilds
  capacity  Grow the table chunk by chunk and report buffer growth
  cull      Compare GPU cull results with the CPU reference around an orbit

Common options:
  -v        Log renderer activity at debug level

Examples:
  packbench churn -steps 2000 -rebuild-every 20
  packbench capacity -meshes 200 -headroom 0.5
  packbench cull -grid 16 -angles 12`)
}

// newLogger returns a console logger at debug level when verbose is set.
func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return logger.Nop(), nil
	}
	return logger.New(logger.Options{Level: "debug", Console: true})
}

// commonFlags registers the options shared by every command.
func commonFlags(fs *flag.FlagSet) *bool {
	return fs.Bool("v", false, "Log renderer activity at debug level")
}
