package commands

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reminderd/internal/backend"
	"reminderd/internal/config"
)

func addToken(topLevel *cobra.Command, g *globalOptions) {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the backend bearer token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var file string
	set := &cobra.Command{
		Use:   "set [token]",
		Short: "Store the bearer token in the configured token file (reads stdin without an argument).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := tokenPath(g, file)
			if err != nil {
				return err
			}
			var tok string
			if len(args) == 1 {
				tok = args[0]
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					tok = sc.Text()
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}
			tok = strings.TrimSpace(tok)
			if tok == "" {
				return errors.New("token is empty")
			}
			if err := backend.CheckExpiry(tok, time.Now()); err != nil {
				return err
			}
			if err := backend.SaveToken(path, tok); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", path)
			return err
		},
	}
	set.Flags().StringVar(&file, "file", "", "token file (defaults to backend.token_file)")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Report whether a token is available and unexpired.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			creds := backend.Credentials{Path: cfg.Backend.TokenFile, Env: cfg.Backend.TokenEnv}
			tok, err := creds.Token()
			if err != nil {
				return err
			}
			if err := backend.CheckExpiry(tok, time.Now()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), green.Sprint("token ok"))
			return err
		},
	})
	topLevel.AddCommand(cmd)
}

func loadConfig(g *globalOptions) (*config.Config, error) {
	return config.NewConfigManager(g.ConfigPath).Load()
}

func tokenPath(g *globalOptions, override string) (string, error) {
	if p := strings.TrimSpace(override); p != "" {
		return p, nil
	}
	cfg, err := loadConfig(g)
	if err != nil {
		return "", err
	}
	if p := strings.TrimSpace(cfg.Backend.TokenFile); p != "" {
		return p, nil
	}
	return "", errors.New("no token file: set backend.token_file or pass --file")
}
