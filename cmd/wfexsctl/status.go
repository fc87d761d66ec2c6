package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wfexsgo/core/internal/controller"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print an instance's reopened marshalling status",
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

			report := struct {
				InstanceID string `yaml:"instance_id"`
				Nickname   string `yaml:"nickname,omitempty"`
				Damaged    bool   `yaml:"damaged"`
				Status     any    `yaml:"status"`
			}{
				InstanceID: c.Instance.ID,
				Nickname:   c.Instance.Nickname,
				Damaged:    c.Setup.IsDamaged,
				Status:     c.Status,
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(report)
		},
	}
}
