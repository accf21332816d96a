package main

import (
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadscout/internal/model"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the search categories a run would use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tiers, _ := cmd.Flags().GetIntSlice("tier")
		cats, err := runParams{Tiers: tiers}.categories(cfg)
		if err != nil {
			return err
		}
		renderCategories(os.Stdout, cats)
		return nil
	},
}

func init() {
	categoriesCmd.Flags().IntSlice("tier", nil, "only these tiers")
	rootCmd.AddCommand(categoriesCmd)
}

// renderCategories prints one row per tier.
func renderCategories(w io.Writer, cats []model.Category) {
	var order []int
	byTier := make(map[int][]string)
	for _, c := range cats {
		if _, ok := byTier[c.Tier]; !ok {
			order = append(order, c.Tier)
		}
		byTier[c.Tier] = append(byTier[c.Tier], c.Name)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Tier", "Count", "Categories"})
	for _, tier := range order {
		names := byTier[tier]
		t.AppendRow(table.Row{tier, len(names), strings.Join(names, ", ")})
	}
	t.AppendFooter(table.Row{"", len(cats), ""})
	t.Render()
}
