package main

import (
	"os"

	"github.com/spf13/cobra"
)

var inMemory bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "api",
		Short: "Storefront identity and authentication API",
		Long: `api serves the storefront authentication endpoints.

On start it applies database migrations and ensures the configured super
admin account exists before accepting requests.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVar(&inMemory, "in-memory", false,
		"use in-process stores instead of postgres and redis (development only)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Apply migrations, ensure the super admin exists and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return seedOnly(cmd.Context())
		},
	})
	return root
}
