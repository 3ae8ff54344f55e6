package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openstats-labs/statcube/internal/dateref"
	"github.com/openstats-labs/statcube/pkg/core"
)

// tsDisplay renders interval bounds in the generated table.
const tsDisplay = "2006-01-02 15:04:05"

func newDateRefCommand() *cobra.Command {
	var (
		kind          string
		yearFormat    string
		quarterFormat string
		monthFormat   string
		dateFormat    string
		fifthQuarter  bool
	)

	cmd := &cobra.Command{
		Use:   "dateref <code>...",
		Short: "Generate a date reference table from raw period codes",
		Long: `Expands declarative year, quarter and month formats against the given raw
codes and prints the generated reference rows. Useful for checking what a
date-period dimension configuration will produce before a build.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ext := core.DatePeriodExtractor{
				PeriodKind:                 core.PeriodKind(kind),
				YearFormat:                 yearFormat,
				QuarterFormat:              quarterFormat,
				MonthFormat:                monthFormat,
				DateFormat:                 dateFormat,
				QuarterTotalIsFifthQuarter: fifthQuarter,
			}

			rows, err := dateref.Generate(ext, args)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"code", "start", "end", "type", "parent"})
			for _, r := range rows {
				t.AppendRow(table.Row{
					r.DateCode,
					r.Start.Format(tsDisplay),
					r.End.Format(tsDisplay),
					string(r.Type),
					r.ParentCode,
				})
			}
			t.Render()

			cmd.Println(fmt.Sprintf("%d rows", len(rows)))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "calendar", "Period kind (calendar, financial, point_in_time)")
	cmd.Flags().StringVar(&yearFormat, "year-format", "YYYY", "Year format token")
	cmd.Flags().StringVar(&quarterFormat, "quarter-format", "", "Quarter format token (contains X)")
	cmd.Flags().StringVar(&monthFormat, "month-format", "", "Month format token (MMM, mMM or mm)")
	cmd.Flags().StringVar(&dateFormat, "date-format", "", "Date format for point_in_time periods")
	cmd.Flags().BoolVar(&fifthQuarter, "fifth-quarter", false, "Represent the annual total as a fifth quarter")
	return cmd
}
