package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seaborne/helmsman/config"
)

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the configured agent profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			table := cfg.Profiles()
			name := color.New(color.FgCyan, color.Bold)
			for _, n := range table.Names() {
				p, _ := table.Get(n)

				marker := " "
				if n == cfg.DefaultAgent {
					marker = "*"
				}
				name.Printf("%s %s", marker, p.Name)
				fmt.Printf("  (%s / %s)\n", p.Provider, p.Model)

				toolSet := "all registered tools"
				if p.Tools != nil {
					toolSet = strings.Join(p.Tools, ", ")
				}
				fmt.Printf("    tools: %s\n", toolSet)
				if len(p.Gated) > 0 {
					fmt.Printf("    gated: %s\n", strings.Join(p.Gated, ", "))
				}
			}
			return nil
		},
	}
}
