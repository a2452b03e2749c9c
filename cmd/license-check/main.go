// license-check runs one validation pass as an installed client would:
// it loads the client configuration, consults the durable cache, talks
// to the issuer if the cache is stale, and exits 0 when the
// installation is authorized and 1 when it is not. Trading bots invoke
// it at startup before any order is placed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/NevessSt/Trading-bots-sub000/internal/client"
	"github.com/NevessSt/Trading-bots-sub000/internal/config"
	"github.com/NevessSt/Trading-bots-sub000/internal/infrastructure"
)

func main() {
	feature := flag.String("feature", "", "also require this feature to be licensed")
	quiet := flag.Bool("quiet", false, "suppress output, exit code only")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	validator, err := client.New(client.FromClientConfig(cfg.Client), logger)
	if err != nil {
		slog.Error("Failed to create license validator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	authorized, reason := validator.Validate(context.Background())
	featureMissing := authorized && *feature != "" && !validator.IsAuthorized(*feature)
	if featureMissing {
		authorized = false
	}

	if !*quiet {
		switch {
		case authorized:
			fmt.Printf("authorized (%s)\n", validator.CurrentState())
		case featureMissing:
			fmt.Printf("not authorized: feature %q is not licensed\n", *feature)
		default:
			fmt.Printf("not authorized: %s\n", reason)
		}
	}

	if !authorized {
		os.Exit(1)
	}
}
