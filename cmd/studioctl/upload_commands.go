package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/leca/studio-images/internal/client"
	"github.com/leca/studio-images/internal/display"
	"github.com/leca/studio-images/internal/ingest"
	"github.com/leca/studio-images/internal/model"
	"github.com/leca/studio-images/internal/resolve"
)

// recordFlags target a record with the resolved URL.
type recordFlags struct {
	collection  string
	id          string
	title       string
	subtitle    string
	category    string
	description string
	position    int
}

func (f *recordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.collection, "collection", "", "Record collection (carousel or gallery)")
	cmd.Flags().StringVar(&f.id, "id", "", "Record id to write the URL to")
	cmd.Flags().StringVar(&f.title, "title", "", "Record title")
	cmd.Flags().StringVar(&f.subtitle, "subtitle", "", "Record subtitle")
	cmd.Flags().StringVar(&f.category, "category", "", "Record category")
	cmd.Flags().StringVar(&f.description, "description", "", "Record description")
	cmd.Flags().IntVar(&f.position, "position", 0, "Record position")
}

func (f *recordFlags) target() (model.Collection, bool, error) {
	if f.collection == "" && f.id == "" {
		return "", false, nil
	}
	if f.collection == "" || f.id == "" {
		return "", false, errors.New("--collection and --id must be given together")
	}
	c, ok := model.ParseCollection(f.collection)
	if !ok {
		return "", false, fmt.Errorf("unknown collection %q", f.collection)
	}
	return c, true, nil
}

// update sends only the flags that were set, so other fields keep their
// stored values.
func (f *recordFlags) update(cmd *cobra.Command, url string) client.RecordUpdate {
	upd := client.RecordUpdate{URL: url}
	set := func(name string, v *string) *string {
		if cmd.Flags().Changed(name) {
			return v
		}
		return nil
	}
	upd.Title = set("title", &f.title)
	upd.Subtitle = set("subtitle", &f.subtitle)
	upd.Category = set("category", &f.category)
	upd.Description = set("description", &f.description)
	if cmd.Flags().Changed("position") {
		upd.Position = &f.position
	}
	return upd
}

type ingestOutput struct {
	ingest.ResourceReference
	Record       *model.Record `json:"record,omitempty"`
	CacheVersion int64         `json:"cacheVersion,omitempty"`
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var rf recordFlags
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Compress if needed, upload an image and optionally set it on a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, write, err := rf.target()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			r, err := ctx.resolver(cmd)
			if err != nil {
				return err
			}
			ref, err := r.IngestFile(cmd.Context(), filepath.Base(args[0]), data)
			if err != nil {
				return withSuggestion(err)
			}
			return ctx.finish(cmd, ref, collection, write, &rf)
		},
	}
	rf.register(cmd)
	return cmd
}

func newSetURLCommand(ctx *commandContext) *cobra.Command {
	var rf recordFlags
	cmd := &cobra.Command{
		Use:   "set-url <collection> <id> <url>",
		Short: "Resolve a pasted URL or data URI and write it to a record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rf.collection, rf.id = args[0], args[1]
			collection, _, err := rf.target()
			if err != nil {
				return err
			}
			r, err := ctx.resolver(cmd)
			if err != nil {
				return err
			}
			ref, err := r.ResolvePastedInput(cmd.Context(), args[2])
			if err != nil {
				return err
			}
			return ctx.finish(cmd, ref, collection, true, &rf)
		},
	}
	rf.register(cmd)
	_ = cmd.Flags().MarkHidden("collection")
	_ = cmd.Flags().MarkHidden("id")
	return cmd
}

// finish writes the resolved URL to the record, if one was named, and
// prints the outcome. A failed write leaves the record's previous URL.
func (c *commandContext) finish(cmd *cobra.Command, ref ingest.ResourceReference, collection model.Collection, write bool, rf *recordFlags) error {
	out := ingestOutput{ResourceReference: ref}
	if write {
		api, err := c.apiClient()
		if err != nil {
			return err
		}
		saved, err := api.PutRecord(cmd.Context(), collection, rf.id, rf.update(cmd, ref.Resource.FinalURL))
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, rf.id, err)
		}
		out.Record = &saved.Record
		out.CacheVersion = saved.CacheVersion
	}

	if c.useJSON(cmd) {
		return writeJSON(cmd, out)
	}
	rows := [][]string{
		{"Status", ref.Status},
		{"URL", ref.Resource.FinalURL},
		{"Source", string(ref.Resource.SourceKind)},
		{"Encoding", string(ref.Resource.Encoding)},
	}
	if ref.Resource.SizeBytes > 0 {
		rows = append(rows, []string{"Size", humanize.IBytes(uint64(ref.Resource.SizeBytes))})
	}
	if out.Record != nil {
		rows = append(rows,
			[]string{"Record", string(collection) + "/" + out.Record.ID},
			[]string{"Cache version", strconv.FormatInt(out.CacheVersion, 10)},
		)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
	return nil
}

func withSuggestion(err error) error {
	var ue *ingest.UploadError
	if errors.As(err, &ue) {
		return fmt.Errorf("%w\n%s", err, ue.Suggestion())
	}
	return err
}

type resolvedValue struct {
	Input   string `json:"input"`
	Display string `json:"display"`
}

func newResolveCommand() *cobra.Command {
	var cacheVersion int64
	cmd := &cobra.Command{
		Use:         "resolve <stored-value>...",
		Short:       "Show the display URL for stored image values",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			v := display.NewCacheVersion(cacheVersion)
			out := make([]resolvedValue, 0, len(args))
			for _, a := range args {
				u := resolve.DisplayURL(a)
				if cacheVersion > 0 {
					u = v.Apply(u)
				}
				out = append(out, resolvedValue{Input: a, Display: u})
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd, out)
			}
			for _, r := range out {
				if r.Display == resolve.NoImage {
					fmt.Fprintln(cmd.OutOrStdout(), "(no image)")
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), r.Display)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&cacheVersion, "cache-version", 0, "Append this cache-busting version")
	return cmd
}
