package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wfexsgo/core/internal/controller"
)

func newExportCommand() *cobra.Command {
	var credentialFlags []string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run the configured export actions (EXECUTED -> EXPORTED)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRawDir(); err != nil {
				return err
			}

			log := newLogger()
			defer log.Sync()

			opts, err := buildOptions(log)
			if err != nil {
				return err
			}

			c, err := controller.Open(flagRawDir, opts)
			if err != nil {
				return fmt.Errorf("open instance: %w", err)
			}
			defer c.Close()

			actions, err := c.DefaultExportActions()
			if err != nil {
				return fmt.Errorf("parse default export actions: %w", err)
			}
			if len(actions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no default export actions declared; nothing to do")
				return nil
			}

			credentials, err := parseCredentials(credentialFlags)
			if err != nil {
				return err
			}

			if err := c.ExportResults(context.Background(), actions, credentials); err != nil {
				return fmt.Errorf("export results: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %d action(s)\n", len(actions))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&credentialFlags, "credential", nil, "CONTEXT:KEY=VALUE credential, scoped to a security-context name (repeatable)")
	return cmd
}

// parseCredentials parses "context:key=value" tokens into the
// credentials table ExportResults expects (spec §4.10: "Credential
// tables are never persisted").
func parseCredentials(tokens []string) (map[string]map[string]string, error) {
	out := map[string]map[string]string{}
	for _, tok := range tokens {
		ctxName, rest, ok := strings.Cut(tok, ":")
		if !ok {
			return nil, fmt.Errorf("malformed --credential %q, expected CONTEXT:KEY=VALUE", tok)
		}
		k, v, ok := strings.Cut(rest, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --credential %q, expected CONTEXT:KEY=VALUE", tok)
		}
		if out[ctxName] == nil {
			out[ctxName] = map[string]string{}
		}
		out[ctxName][k] = v
	}
	return out, nil
}
