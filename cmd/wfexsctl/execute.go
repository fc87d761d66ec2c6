package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfexsgo/core/internal/controller"
)

func newExecuteCommand() *cobra.Command {
	var environment []string

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Launch the staged engine and resolve outputs (STAGED -> EXECUTED)",
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

			env := make(map[string]string, len(environment))
			for _, kv := range environment {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("malformed --env %q, expected KEY=VALUE", kv)
				}
				env[k] = v
			}

			started := time.Now()
			exitCode, err := c.ExecuteWorkflow(context.Background(), env)
			ended := time.Now()
			if err != nil {
				return fmt.Errorf("execute workflow: %w", err)
			}

			if err := c.EmitExecutionCrate(started, ended); err != nil {
				return fmt.Errorf("emit execution crate: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "engine exit code: %d\n", exitCode)
			if exitCode != 0 {
				os.Exit(exitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&environment, "env", nil, "KEY=VALUE environment variable for the engine subprocess (repeatable)")
	return cmd
}
