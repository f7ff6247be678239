// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/tablesort/internal/filereader"
	"github.com/cardinalhq/tablesort/internal/pipeline/wkk"
)

func init() {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the columns and kinds tablesort sees in a file",
		RunE: func(c *cobra.Command, _ []string) error {
			input, err := c.Flags().GetString("input")
			if err != nil {
				return fmt.Errorf("failed to get input flag: %w", err)
			}
			keyColumn, err := c.Flags().GetString("key-column")
			if err != nil {
				return err
			}
			types, err := c.Flags().GetStringSlice("type")
			if err != nil {
				return err
			}
			return runSchema(c.OutOrStdout(), input, keyColumn, types)
		},
	}

	cmd.Flags().String("input", "", "Input file (.csv, .csv.gz or .parquet)")
	cmd.Flags().String("key-column", "", "Input column to carry as the row key")
	cmd.Flags().StringSlice("type", nil, "Force a column kind, as column=kind")
	if err := cmd.MarkFlagRequired("input"); err != nil {
		panic(fmt.Errorf("failed to mark input flag as required: %w", err))
	}

	rootCmd.AddCommand(cmd)
}

func runSchema(out io.Writer, input, keyColumn string, typePairs []string) error {
	types, err := filereader.ParseTypes(typePairs)
	if err != nil {
		return err
	}
	reader, err := filereader.Open(input, filereader.Options{KeyColumn: keyColumn, Types: types})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", input, err)
	}
	defer func() { _ = reader.Close() }()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tKIND")
	for _, col := range reader.Schema().Columns() {
		fmt.Fprintf(tw, "%s\t%s\n", wkk.ColumnNameValue(col.Name), col.Kind)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if n := reader.RowCount(); n >= 0 {
		fmt.Fprintf(out, "rows: %d\n", n)
	} else {
		fmt.Fprintln(out, "rows: unknown")
	}
	return nil
}
