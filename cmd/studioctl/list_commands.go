package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/leca/studio-images/internal/model"
)

func newUploadsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Inspect and delete stored uploads",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored uploads, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			images, err := api.ListUploads(cmd.Context())
			if err != nil {
				return err
			}
			for i := range images {
				images[i].URL = api.Resolve(images[i].URL)
			}
			if ctx.useJSON(cmd) {
				return writeJSON(cmd, images)
			}
			if len(images) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No uploads")
				return nil
			}
			rows := make([][]string, 0, len(images))
			for _, img := range images {
				rows = append(rows, []string{
					img.Filename,
					humanize.IBytes(uint64(img.Size)),
					humanize.Time(img.UploadDate),
					img.URL,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Filename", "Size", "Uploaded", "URL"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <filename>...",
		Short: "Delete stored uploads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			for _, name := range args {
				if err := api.DeleteUpload(cmd.Context(), name); err != nil {
					return fmt.Errorf("delete %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
			}
			return nil
		},
	})

	return cmd
}

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and repair carousel and gallery records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <collection>",
		Short: "List a collection's records with display URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, ok := model.ParseCollection(args[0])
			if !ok {
				return fmt.Errorf("unknown collection %q", args[0])
			}
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			list, err := api.ListRecords(cmd.Context(), collection)
			if err != nil {
				return err
			}
			if ctx.useJSON(cmd) {
				return writeJSON(cmd, list)
			}
			rows := make([][]string, 0, len(list.Records))
			for _, r := range list.Records {
				rows = append(rows, []string{
					r.ID,
					strconv.Itoa(r.Position),
					r.Title,
					r.URL.Display(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Position", "Title", "URL"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "Cache version: %d\n", list.CacheVersion)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "repair",
		Short: "Rewrite stored URLs that were saved as encoded JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			n, err := api.RepairRecords(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.useJSON(cmd) {
				return writeJSON(cmd, map[string]int{"repaired": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d record(s)\n", n)
			return nil
		},
	})

	return cmd
}
