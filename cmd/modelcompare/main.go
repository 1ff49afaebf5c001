package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zen-systems/modelcompare/pkg/compare"
	"github.com/zen-systems/modelcompare/pkg/server"
	"github.com/zen-systems/modelcompare/pkg/store"
	"github.com/zen-systems/modelcompare/pkg/stream"
	"go.uber.org/zap"
)

var configFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "modelcompare",
		Short: "Send one prompt to several LLM providers and compare the answers",
		Long: `modelcompare fans a prompt out to every configured provider concurrently,
	collects each answer with its token usage, latency and cost, and keeps a
	history of comparisons in a local SQLite database.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ./modelcompare.yaml or ~/.modelcompare/modelcompare.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(askCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(showCmd())
	root.AddCommand(modelsCmd())

	return root
}

func serveCmd() *cobra.Command {
	var addrFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			addr := a.cfg.Server.Addr
			if addrFlag != "" {
				addr = addrFlag
			}

			srv := server.New(server.Options{
				Addr:           addr,
				RateLimitRPS:   a.cfg.Server.RateLimit.RPS,
				RateLimitBurst: a.cfg.Server.RateLimit.Burst,
				CompareTimeout: a.cfg.Compare.Timeout,
				Gatherer:       a.registry,
				Recorder:       a.metrics,
			}, orch, st, a.logger.Named("server"))

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			a.logger.Info("modelcompare server ready",
				zap.String("addr", addr),
				zap.Strings("providers", a.cfg.Compare.Providers),
			)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				a.logger.Info("received shutdown signal")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("server shutdown error", zap.Error(err))
			}
			a.logger.Info("modelcompare server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func askCmd() *cobra.Command {
	var streamFlag bool
	var noSave bool

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Compare the providers' answers to a prompt",
		Long: `Sends the prompt to every provider in compare.providers at once and
	prints each answer with its metrics.

	Use --stream to write the NDJSON event stream to stdout instead, one
	event per line as providers produce tokens.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if a.cfg.Compare.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.cfg.Compare.Timeout)
				defer cancel()
			}

			var result *compare.Result
			if streamFlag {
				result, err = orch.Stream(ctx, prompt, stream.NewEncoder(os.Stdout))
			} else {
				result, err = orch.Compare(ctx, prompt)
			}
			if err != nil {
				return err
			}

			if !streamFlag {
				if err := printResult(os.Stdout, result); err != nil {
					return err
				}
			}

			if noSave {
				return nil
			}
			st, err := a.openStore(context.Background())
			if err != nil {
				return err
			}
			defer st.Close()

			saved, err := st.Create(context.Background(), result.Prompt, result.Successful(), result.Metrics)
			if err != nil {
				return fmt.Errorf("failed to save comparison: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Saved comparison %s\n", saved.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&streamFlag, "stream", false, "write NDJSON events to stdout as providers answer")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the comparison")

	return cmd
}

func historyCmd() *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored comparisons, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			page, limit = store.NormalizePage(page, limit)
			comparisons, total, err := st.List(ctx, page, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tRESPONSES\tFASTEST\tCOST\tPROMPT")
			for _, c := range comparisons {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t$%.4f\t%s\n",
					c.ID,
					c.CreatedAt.Local().Format(time.DateTime),
					len(c.Responses),
					orDash(c.Metrics.FastestModel),
					c.Metrics.TotalCost,
					truncate(c.Prompt, 48),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Printf("\nPage %d of %d (%d total)\n", page, (total+limit-1)/limit, total)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", store.DefaultPage, "page number")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultLimit, "comparisons per page")

	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a stored comparison",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			c, err := st.Get(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Comparison %s (%s)\n", c.ID, c.CreatedAt.Local().Format(time.DateTime))
			fmt.Printf("Prompt: %s\n\n", c.Prompt)
			for _, r := range c.Responses {
				fmt.Printf("== %s (%s) ==\n%s\n", r.Provider, r.Model, r.Content)
				fmt.Printf("[%d tokens, %dms, $%.4f]\n\n", r.Metrics.TotalTokens, r.Metrics.LatencyMs, r.Metrics.Cost)
			}
			return printSummary(os.Stdout, c.Metrics)
		},
	}
}

func modelsCmd() *cobra.Command {
	var resolveFlag bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List providers, models, and aliases",
		Long: `Lists every provider with its known models and whether it is ready.

	Use --resolve to show aliases and what they resolve to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			aliases := a.cfg.Aliases
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

			if resolveFlag {
				all := aliases.ListAliases()
				names := make([]string, 0, len(all))
				for name := range all {
					names = append(names, name)
				}
				sort.Strings(names)

				fmt.Fprintln(w, "ALIAS\tMODEL")
				for _, name := range names {
					fmt.Fprintf(w, "%s\t%s\n", name, all[name])
				}
				return w.Flush()
			}

			specs, err := a.cfg.ProviderSpecs()
			if err != nil {
				return err
			}
			compared := make(map[string]string, len(specs))
			for _, s := range specs {
				compared[s.Name] = s.String()
			}

			fmt.Fprintln(w, "PROVIDER\tMODELS\tSTATUS\tCOMPARED")
			for _, provider := range aliases.ListProviders() {
				status := "no key"
				if a.cfg.HasAdapter(provider) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					provider,
					strings.Join(aliases.GetProviderModels(provider), ", "),
					status,
					orDash(compared[provider]),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&resolveFlag, "resolve", false, "show aliases and what they resolve to")

	return cmd
}

func printResult(out io.Writer, result *compare.Result) error {
	for _, o := range result.Outcomes {
		if o.Status == compare.StatusRejected {
			fmt.Fprintf(out, "== %s (%s) ==\nerror: %s\n\n", o.Provider, o.Model, o.Failure.Message)
			continue
		}
		r := o.Response
		fmt.Fprintf(out, "== %s (%s) ==\n%s\n", r.Provider, r.Model, r.Content)
		fmt.Fprintf(out, "[%d tokens, %dms, $%.4f]\n\n", r.Metrics.TotalTokens, r.Metrics.LatencyMs, r.Metrics.Cost)
	}
	fmt.Fprintf(out, "%d succeeded, %d failed\n", result.Succeeded(), result.Failed())
	return printSummary(out, result.Metrics)
}

func printSummary(out io.Writer, m compare.Metrics) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Slowest latency:\t%dms\n", m.TotalLatencyMs)
	fmt.Fprintf(w, "Total cost:\t$%.4f\n", m.TotalCost)
	fmt.Fprintf(w, "Fastest model:\t%s\n", orDash(m.FastestModel))
	fmt.Fprintf(w, "Most cost-effective:\t%s\n", orDash(m.MostCostEffectiveModel))
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to n runes on one line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
