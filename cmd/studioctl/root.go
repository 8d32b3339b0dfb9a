package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "studioctl",
		Short:         "Upload and manage studio images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.serverFlag, "server", "", "Server base URL")
	flags.StringVar(&ctx.tokenFlag, "token", "", "Admin bearer token")
	flags.StringVar(&ctx.backendFlag, "backend", "", "Upload backend (server or cloudinary)")
	flags.BoolVar(&ctx.jsonFlag, "json", false, "Output JSON")
	flags.BoolVarP(&ctx.verboseFlag, "verbose", "v", false, "Verbose logging on stderr")

	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newSetURLCommand(ctx))
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newUploadsCommand(ctx))
	rootCmd.AddCommand(newRecordsCommand(ctx))

	return rootCmd
}
