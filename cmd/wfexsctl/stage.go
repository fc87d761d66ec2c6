package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wfexsgo/core/internal/controller"
)

func newStageCommand() *cobra.Command {
	var configPath, nickname string

	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Configure, fetch, and materialize a workflow instance (INIT -> STAGED)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRawDir(); err != nil {
				return err
			}
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}

			data, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			var doc controller.ConfigDoc
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse config: %w", err)
			}

			log := newLogger()
			defer log.Sync()

			opts, err := buildOptions(log)
			if err != nil {
				return err
			}

			c, err := controller.New(flagRawDir, nickname, opts)
			if err != nil {
				return fmt.Errorf("provision instance: %w", err)
			}
			defer c.Close()

			if err := c.MarshallConfig(doc); err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}

			ctx := context.Background()
			if err := c.FetchWorkflow(ctx); err != nil {
				return fmt.Errorf("fetch workflow: %w", err)
			}
			if err := c.SetupEngine(ctx); err != nil {
				return fmt.Errorf("setup engine: %w", err)
			}
			if err := c.MaterializeWorkflow(ctx); err != nil {
				return fmt.Errorf("materialize workflow: %w", err)
			}
			if err := c.MaterializeInputs(ctx); err != nil {
				return fmt.Errorf("materialize inputs: %w", err)
			}
			if err := c.MarshallStage(); err != nil {
				return fmt.Errorf("marshal stage: %w", err)
			}
			if err := c.EmitStageCrate(); err != nil {
				return fmt.Errorf("emit stage crate: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "staged instance %s at %s\n", c.Instance.ID, flagRawDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to workflow_meta.yaml (required)")
	cmd.Flags().StringVar(&nickname, "nickname", "", "human-friendly instance nickname")
	return cmd
}
