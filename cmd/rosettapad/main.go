// Command rosettapad emulates a PlayStation 3 DualShock 3 controller over
// USB and Bluetooth, bridging an arbitrary physical controller through to
// a PS3 console exactly as a genuine DS3 would appear.
package main

import (
	"os"
	"strings"

	"github.com/rosettapad/rosettapad/internal/cmdline"
	"github.com/rosettapad/rosettapad/internal/configpaths"
	"github.com/rosettapad/rosettapad/internal/log"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
)

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	var cli cmdline.CLI
	ctx := kong.Parse(&cli,
		kong.Name("rosettapad"),
		kong.Description("DualShock 3 controller-bridge emulator"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, rawLogger, cleanup, err := cmdline.NewLogger(cli.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer cleanup()

	ctx.Bind(logger)
	ctx.BindTo(rawLogger, (*log.RawLogger)(nil))
	ctx.Bind(&cli)

	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v := os.Getenv("ROSETTAPAD_CONFIG"); v != "" {
		return v
	}
	return ""
}
