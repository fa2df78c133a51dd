// Package cmd implements the vulnprio command line: local scoring and viewing
// of asset and finding exports, and submission of findings to the service.
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/ortelius/vulnprio/config"
	"github.com/ortelius/vulnprio/engine"
	"github.com/ortelius/vulnprio/ingest"
	"github.com/ortelius/vulnprio/model"
	"github.com/ortelius/vulnprio/observability"
	"github.com/ortelius/vulnprio/scoring"
	"github.com/ortelius/vulnprio/util"
	"github.com/ortelius/vulnprio/view"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const divider = "─────────────────────────────────────────────────────────────────────────────────────────"

type rootOptions struct {
	serverURL string
	verbose   bool
}

type snapshotOptions struct {
	assetsFile   string
	findingsFile string
	shards       int
}

// NewRootCmd builds the vulnprio command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "vulnprio",
		Short: "Vulnerability prioritization CLI",
		Long: `A CLI tool for scoring and prioritizing vulnerabilities.
Correlates scanner findings with scored assets from local exports,
or submits new findings to the vulnprio API.`,
		SilenceUsage: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:3000", "vulnprio API server URL")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(
		newScoreCmd(),
		newViewCmd(opts),
		newSummaryCmd(opts),
		newIngestCmd(opts),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *rootOptions) logger(cmd *cobra.Command) *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	cfg := config.NewDefaultConfig().Logger
	cfg.Level = "debug"
	return observability.NewLogger(cfg, zapcore.AddSync(cmd.ErrOrStderr()))
}

func addSnapshotFlags(cmd *cobra.Command, so *snapshotOptions) {
	cmd.Flags().StringVarP(&so.assetsFile, "assets", "a", "", "Path to the asset export, JSON or YAML (required)")
	cmd.Flags().StringVarP(&so.findingsFile, "findings", "f", "", "Path to the findings export (required)")
	cmd.Flags().IntVar(&so.shards, "shards", 1, "Number of shards used to build the asset index")
	_ = cmd.MarkFlagRequired("assets")
	_ = cmd.MarkFlagRequired("findings")
}

func prepare(ctx context.Context, log *zap.Logger, so *snapshotOptions) (*engine.Prepared, error) {
	src := ingest.FileSource{AssetsPath: so.assetsFile, FindingsPath: so.findingsFile}
	snap, err := src.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return engine.New(log, so.shards).Prepare(ctx, snap)
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *score)
}

// ============================================================================
// score
// ============================================================================

func newScoreCmd() *cobra.Command {
	var (
		cvss float64
		epss float64
		kev  bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute the priority score of a single vulnerability",
		Long:  `Combines CVSS, EPSS and KEV listing into a priority score between 0 and 100.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			score := scoring.Score(scoring.Features{CVSS: cvss, EPSS: epss, KEV: kev})
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Priority score: %.2f\n", score)
			fmt.Fprintf(out, "Risk level: %s\n", scoring.RiskLevelFor(score))
			fmt.Fprintf(out, "Severity from CVSS: %s\n", scoring.SeverityFromCVSS(cvss))
			return nil
		},
	}
	cmd.Flags().Float64Var(&cvss, "cvss", 0, "CVSS base score (0-10)")
	cmd.Flags().Float64Var(&epss, "epss", 0, "EPSS exploit probability (0-1)")
	cmd.Flags().BoolVar(&kev, "kev", false, "Listed in the CISA KEV catalog")
	return cmd
}

// ============================================================================
// view
// ============================================================================

func newViewCmd(opts *rootOptions) *cobra.Command {
	so := &snapshotOptions{}
	var (
		sortKey  string
		order    string
		page     int
		pageSize int
		search   string
		severity string
		status   string
	)

	cmd := &cobra.Command{
		Use:   "view",
		Short: "List prioritized vulnerabilities from local exports",
		Long: `Correlates the findings export with the asset export and prints one
page of the result, sorted and filtered like the dashboard list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := prepare(cmd.Context(), opts.logger(cmd), so)
			if err != nil {
				return err
			}

			q := view.Query{
				SortKey:   view.SortKey(sortKey),
				Direction: view.Direction(strings.ToLower(order)),
				Page:      page,
				PageSize:  pageSize,
				Filter:    view.Filter{Search: search},
			}
			if severity != "" {
				q.Filter.Severity = model.ParseSeverity(severity)
			}
			if status != "" {
				st, ok := model.ParseStatus(status)
				if !ok {
					return fmt.Errorf("unknown status: %s", status)
				}
				q.Filter.Status = st
			}

			result, err := p.View(q)
			if err != nil {
				return err
			}
			printPage(cmd.OutOrStdout(), result)
			return nil
		},
	}
	addSnapshotFlags(cmd, so)
	cmd.Flags().StringVar(&sortKey, "sort", string(view.SortPriority), "Sort key (priority_score, cvss_score, createdAt)")
	cmd.Flags().StringVar(&order, "order", string(view.Desc), "Sort direction (asc, desc)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&pageSize, "page-size", view.DefaultPageSize, "Items per page")
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive search in id, title and description")
	cmd.Flags().StringVar(&severity, "severity", "", "Only show this severity")
	cmd.Flags().StringVar(&status, "status", "", "Only show this status (NEW, ANALYZING, RESOLVED, DISMISSED)")
	return cmd
}

func printPage(out io.Writer, p model.Page) {
	if p.OutOfRange {
		fmt.Fprintf(out, "Page %d is past the last page (%d)\n", p.Page, p.TotalPages)
		return
	}

	fmt.Fprintf(out, "Found %d vulnerabilit(ies), page %d of %d:\n\n", p.TotalCount, p.Page, p.TotalPages)
	fmt.Fprintf(out, "%-20s %-10s %-10s %-8s %-30s %-20s\n", "ID", "SCORE", "STATUS", "CVSS", "COMPONENT", "PRODUCT")
	fmt.Fprintln(out, divider)

	for _, v := range p.Items {
		component := v.ComponentName
		if v.ComponentVersion != "" {
			component += ":" + v.ComponentVersion
		}
		fmt.Fprintf(out, "%-20s %-10s %-10s %-8.1f %-30s %-20s\n",
			v.ID, formatScore(v.PriorityScore), v.Status, v.CVSSScore, component, v.ProductLabel())
	}
}

// ============================================================================
// summary
// ============================================================================

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	so := &snapshotOptions{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the dashboard aggregates of local exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := prepare(cmd.Context(), opts.logger(cmd), so)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), p)
			return nil
		},
	}
	addSnapshotFlags(cmd, so)
	return cmd
}

func printSummary(out io.Writer, p *engine.Prepared) {
	fmt.Fprintf(out, "Total: %d\n", p.Summary.Total)
	fmt.Fprintf(out, "Critical: %d\n", p.Summary.Critical)
	fmt.Fprintf(out, "High: %d\n", p.Summary.High)
	fmt.Fprintf(out, "Mean score: %.2f\n", p.Summary.MeanScore)
	fmt.Fprintf(out, "Matched: %d\n", p.Matched)
	fmt.Fprintf(out, "Warnings: %d\n", len(p.Warnings))
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%-40s %-15s %-10s\n", "PRODUCT", "AVERAGE SCORE", "COUNT")
	fmt.Fprintln(out, divider)
	for _, ps := range p.ProductScores {
		fmt.Fprintf(out, "%-40s %-15.2f %-10d\n", ps.Product, ps.AverageScore, ps.Count)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%-40s %-10s\n", "RISK", "COUNT")
	fmt.Fprintln(out, divider)
	for _, label := range model.BucketLabels {
		fmt.Fprintf(out, "%-40s %-10d\n", label, p.RiskDistribution[label])
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Assets: %d\n", p.AssetSummary.Total)
	fmt.Fprintf(out, "Critical assets: %d\n", p.AssetSummary.Critical)
	fmt.Fprintf(out, "High assets: %d\n", p.AssetSummary.High)
	fmt.Fprintf(out, "Mean asset score: %.2f\n", p.AssetSummary.MeanScore)
	fmt.Fprintf(out, "%-40s %-10s\n", "ASSET RISK", "COUNT")
	fmt.Fprintln(out, divider)
	for _, label := range model.BucketLabels {
		fmt.Fprintf(out, "%-40s %-10d\n", label, p.AssetRiskDistribution[label])
	}
}

// ============================================================================
// ingest
// ============================================================================

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Submit vulnerabilities to the vulnprio API",
		Long: `Validates and scores a JSON document of vulnerabilities and posts it
to the ingestion endpoint. With --dry-run the document is only scored locally.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !util.FileExists(file) {
				return fmt.Errorf("file not found: %s", file)
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}

			vulns, warnings, err := ingest.NewWizard(opts.logger(cmd), nil).Process(raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, w := range warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}

			if dryRun {
				fmt.Fprintf(out, "%-20s %-10s %-10s\n", "CVE", "SCORE", "SEVERITY")
				fmt.Fprintln(out, divider)
				for _, v := range vulns {
					fmt.Fprintf(out, "%-20s %-10s %-10s\n", v.ID, formatScore(v.PriorityScore), v.Severity)
				}
				return nil
			}

			resp, err := postFindings(opts, raw)
			if err != nil {
				return fmt.Errorf("failed to submit findings: %w", err)
			}
			fmt.Fprintf(out, "✓ %s (%d vulnerabilit(ies))\n", resp.Message, len(resp.Vulnerabilities))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to the JSON document (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Score locally without submitting")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func postFindings(opts *rootOptions, payload []byte) (model.IngestResponse, error) {
	var result model.IngestResponse

	if opts.verbose {
		var parsed interface{}
		if err := json.Unmarshal(payload, &parsed); err == nil {
			if pretty, err := json.MarshalIndent(parsed, "", "  "); err == nil {
				fmt.Println("Request payload:")
				fmt.Println(string(pretty))
			}
		}
	}

	url := strings.TrimRight(opts.serverURL, "/") + "/api/v1/findings"
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return result, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return result, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("failed to parse response: %w", err)
	}
	return result, nil
}
