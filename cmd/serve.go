package cmd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmorganca/headliner/api"
	"github.com/jmorganca/headliner/envconfig"
	"github.com/jmorganca/headliner/runner"
	"github.com/jmorganca/headliner/server"
)

func RunServer(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	d, err := runner.Load(c)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", envconfig.Host)
	if err != nil {
		return err
	}

	return server.Serve(cmd.Context(), ln, d)
}

// checkServerHeartbeat fails early when no server answers on
// HEADLINER_HOST.
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	if err := client.Heartbeat(cmd.Context()); err != nil {
		return fmt.Errorf("could not connect to a headliner server at %s, start one with 'headliner serve': %w", envconfig.Host, err)
	}

	return nil
}

func SummarizeHandler(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		if runner.IsTerminal(os.Stdin) {
			return errors.New("no text to summarize")
		}

		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		text = string(b)
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Summarize(cmd.Context(), &api.SummarizeRequest{Text: text})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Summary)
	return nil
}
