package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openstats-labs/statcube/internal/config"
	"github.com/openstats-labs/statcube/pkg/core"
)

func newPreviewCommand(cfgFn func() *config.Config) *cobra.Command {
	var (
		pageNumber int
		pageSize   int
		locale     string
		raw        bool
	)

	cmd := &cobra.Command{
		Use:   "preview <revision-id>",
		Short: "Show a page of a revision's assembled cube",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), cfgFn())
			if err != nil {
				return err
			}
			defer app.Close()

			loc := core.Locale(locale)
			if matched, ok := app.catalog.MatchLocale(locale); ok {
				loc = matched
			}

			page, errResp := app.preview.GetPreview(cmd.Context(), args[0],
				pageNumber, pageSize, loc, raw)
			if errResp != nil {
				for _, fieldErr := range errResp.Errors {
					for _, msg := range fieldErr.UserMessage {
						if msg.Lang == loc || msg.Lang == core.LocaleEnglish {
							cmd.PrintErrf("%s: %s\n", fieldErr.Field, msg.Message)
						}
					}
				}
				return fmt.Errorf("preview failed (status %d)", errResp.Status)
			}

			renderPage(cmd, page)
			return nil
		},
	}

	cmd.Flags().IntVar(&pageNumber, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Rows per page")
	cmd.Flags().StringVar(&locale, "locale", "en", "Locale (en or cy)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Show the untransformed view")
	return cmd
}

func renderPage(cmd *cobra.Command, page *core.PreviewPage) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(page.Headers))
	for i, h := range page.Headers {
		header[i] = h.Name
	}
	t.AppendHeader(header)

	for _, row := range page.Rows {
		out := make(table.Row, len(row))
		for i, cell := range row {
			out[i] = cell
		}
		t.AppendRow(out)
	}
	t.Render()

	cmd.Printf("page %d of %d (%d rows total)\n", page.PageNumber, page.TotalPages, page.TotalRows)
}
