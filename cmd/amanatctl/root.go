package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"amanat.org/internal/escrow"
	"amanat.org/internal/escrow/remote"
)

func init() {
	rootCmd.PersistentFlags().String("addr", envOr("AMANAT_ADDR", "localhost:9090"), "gRPC address of the amanat server")
	rootCmd.PersistentFlags().String("token", os.Getenv("AMANAT_TOKEN"), "Bearer token identifying the caller")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "Per-call timeout")
}

var rootCmd = &cobra.Command{
	Use:           "amanatctl",
	Short:         "Operate amanat fundraising escrow",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// withClient dials the server and runs fn with a timeout-bound context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *remote.Client) (any, error)) error {
	addr, _ := cmd.Flags().GetString("addr")
	token, _ := cmd.Flags().GetString("token")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	c, err := remote.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := remote.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	out, err := fn(ctx, c.WithToken(token))
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (escrow.ID, error) { return escrow.ParseID(s) }

func parseInt(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

// descriptionFlag reads --description as a 32-byte hex digest; empty is zero.
func descriptionFlag(cmd *cobra.Command) (escrow.Hash, error) {
	raw, _ := cmd.Flags().GetString("description")
	if raw == "" {
		return escrow.Hash{}, nil
	}
	return escrow.ParseHash(raw)
}
