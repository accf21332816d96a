package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/export"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/progress"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape regions for businesses with violating reviews",
	Long:  "Runs one scrape in the foreground. Progress is printed as it happens; leads are appended to per-region CSV files as they are found and written to the final export files when the run ends. Ctrl-C stops the run after the business in progress and keeps the leads found so far.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		params, err := runParamsFromFlags(cmd)
		if err != nil {
			return err
		}
		req, err := params.request(cfg)
		if err != nil {
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
		if dir, _ := cmd.Flags().GetString("output"); dir != "" {
			cfg.Output.Dir = dir
		}

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		ts := time.Now()
		events := progress.NewChannel(cfg.Server.EventBuffer)
		p := env.pipelineFor(events, events.Dropped, ts)

		var (
			res    *model.RunResult
			runErr error
		)
		go func() {
			defer events.Close()
			res, runErr = p.Run(ctx, req)
		}()
		drain(events, newConsolePrinter(os.Stderr))

		if runErr != nil {
			return eris.Wrap(runErr, "run")
		}

		paths, err := export.WriteAll(cfg.Output.Dir, ts, res.Leads, formats)
		if err != nil {
			return err
		}
		zap.L().Info("run exported",
			zap.String("run_id", res.RunID),
			zap.String("state", string(res.State)),
			zap.Int("leads", len(res.Leads)),
			zap.Strings("files", paths),
		)
		renderSummary(os.Stdout, res, paths)
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringSliceP("region", "r", nil, `postal code or "area, country"; repeat or separate with ";"`)
	f.StringSliceP("category", "c", nil, "search terms (default: configured categories)")
	f.IntSlice("tier", nil, "category tiers to search (1 restaurants, 2 beauty, 3 services)")
	f.String("country", "", "country appended to bare postal codes")
	f.Float64("min-rating", 0, "minimum business rating")
	f.Float64("max-rating", 0, "maximum business rating")
	f.Int("min-reviews", 0, "minimum review count")
	f.Int("max-reviews", 0, "reviews collected per business")
	f.Int("min-violations", 0, "violations that make a lead and stop classification")
	f.Bool("classify-all", false, "classify every collected review")
	f.StringSlice("format", nil, "final export formats: csv, json, xlsx")
	f.StringP("output", "o", "", "output directory (default from config)")
	_ = runCmd.MarkFlagRequired("region")
	rootCmd.AddCommand(runCmd)
}

// runParamsFromFlags reads only the flags the user set, so unset ones keep
// the configured defaults.
func runParamsFromFlags(cmd *cobra.Command) (runParams, error) {
	f := cmd.Flags()
	var p runParams
	p.Regions, _ = f.GetStringSlice("region")
	p.Categories, _ = f.GetStringSlice("category")
	p.Tiers, _ = f.GetIntSlice("tier")
	p.Country, _ = f.GetString("country")

	if f.Changed("min-rating") {
		v, _ := f.GetFloat64("min-rating")
		p.MinRating = &v
	}
	if f.Changed("max-rating") {
		v, _ := f.GetFloat64("max-rating")
		p.MaxRating = &v
	}
	if f.Changed("min-reviews") {
		v, _ := f.GetInt("min-reviews")
		p.MinReviews = &v
	}
	if f.Changed("max-reviews") {
		v, _ := f.GetInt("max-reviews")
		p.MaxReviews = &v
	}
	if f.Changed("min-violations") {
		v, _ := f.GetInt("min-violations")
		p.MinViolationsToStop = &v
	}
	if f.Changed("classify-all") {
		v, _ := f.GetBool("classify-all")
		p.ClassifyAll = &v
	}
	if len(p.Regions) == 0 {
		return p, eris.New("at least one --region is required")
	}
	return p, nil
}

// drain forwards every queued event to sinks until the queue is closed.
func drain(events *progress.Channel, sinks ...progress.Sink) {
	out := progress.Multi(sinks)
	for e := range events.C() {
		out.Emit(e)
	}
}

// consolePrinter writes one line per notable event.
type consolePrinter struct {
	w io.Writer
}

func newConsolePrinter(w io.Writer) *consolePrinter { return &consolePrinter{w: w} }

func (c *consolePrinter) Emit(e progress.Event) {
	if e.Message == "" {
		return
	}
	var color text.Colors
	switch e.Status {
	case progress.StatusClassifyingReviews, progress.StatusBusinessFiltered, progress.StatusBusinessFilteredOut:
		return
	case progress.StatusLeadFound, progress.StatusCompleted:
		color = text.Colors{text.FgGreen, text.Bold}
	case progress.StatusViolationFound:
		color = text.Colors{text.FgYellow}
	case progress.StatusError, progress.StatusStopped:
		color = text.Colors{text.FgRed}
	case progress.StatusVerificationRequired:
		color = text.Colors{text.FgMagenta, text.Bold}
	case progress.StatusAreaStart, progress.StatusCategoryStart:
		color = text.Colors{text.FgCyan}
	}
	line := e.Message
	if len(color) > 0 {
		line = color.Sprint(line)
	}
	_, _ = fmt.Fprintf(c.w, "%s  %s\n", e.Time.Local().Format("15:04:05"), line)
}

// renderSummary prints the run outcome, the leads and the files written.
func renderSummary(w io.Writer, res *model.RunResult, paths []string) {
	s := res.Stats

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Run " + truncateID(res.RunID) + " " + string(res.State))
	t.AppendRows([]table.Row{
		{"Businesses found", s.BusinessesFound},
		{"Businesses filtered out", s.BusinessesFiltered},
		{"Businesses skipped (seen)", s.BusinessesSkipped},
		{"Businesses processed", s.BusinessesProcessed},
		{"Businesses failed", s.BusinessesFailed},
		{"Reviews collected", s.ReviewsScraped},
		{"Reviews classified", s.ReviewsClassified},
		{"Reviews skipped", s.ReviewsSkipped},
		{"Classifier errors", s.ClassifierErrors},
		{"Violations", s.ViolationsFound},
		{"Leads", s.Leads},
		{"Events dropped", s.EventsDropped},
		{"Estimated cost", fmt.Sprintf("$%.4f", s.EstimatedCostUSD)},
		{"Duration", s.Duration().Round(time.Second).String()},
	})
	t.Render()

	if len(res.Leads) > 0 {
		renderLeads(w, res.Leads)
	}

	if len(paths) == 0 {
		_, _ = fmt.Fprintln(w, "No leads found; no export files written.")
		return
	}
	for _, p := range paths {
		_, _ = fmt.Fprintln(w, "Wrote", p)
	}
}

func renderLeads(w io.Writer, leads []model.Lead) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Business", "Region", "Rating", "Reviews", "Violations", "Email", "Website"})
	for _, l := range leads {
		b := l.Business
		t.AppendRow(table.Row{
			text.Trim(b.Name, 40),
			b.Region.PostalCode,
			fmt.Sprintf("%.1f", b.Rating),
			b.ReviewCount,
			l.ViolationsCount(),
			b.Email,
			text.Trim(b.Website, 40),
		})
	}
	t.Render()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

