package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmorganca/headliner/cmd"
	"github.com/jmorganca/headliner/envconfig"
)

func main() {
	if err := cmd.LoadDotEnv("."); err != nil {
		log.Fatal(err)
	}
	envconfig.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(cmd.NewCLI().ExecuteContext(ctx))
}
