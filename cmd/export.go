package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadscout/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Re-export the leads of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		formatList, _ := cmd.Flags().GetStringSlice("format")
		if len(formatList) == 0 {
			formatList = cfg.Output.Formats
		}
		formats, err := export.ParseFormats(formatList)
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("output")
		if dir == "" {
			dir = cfg.Output.Dir
		}

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetRun(ctx, args[0]); err != nil {
			return eris.Wrap(err, "export")
		}
		leads, err := st.ListLeads(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "Run has no leads; nothing to export.")
			return nil
		}

		paths, err := export.WriteAll(dir, time.Now(), leads, formats)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println("Wrote", p)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringSlice("format", nil, "export formats: csv, json, xlsx")
	exportCmd.Flags().StringP("output", "o", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}
