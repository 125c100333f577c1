package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/obs"
	"rental_dashboard/internal/query"
	"rental_dashboard/internal/querykeys"
	"rental_dashboard/internal/retry"
	"rental_dashboard/internal/session"
	"rental_dashboard/internal/transport"
)

func newQueryClient(c *cli, metrics *obs.Metrics) (*query.Client, error) {
	graph, err := invalidation.Default()
	if err != nil {
		return nil, err
	}
	client, err := c.httpClient()
	if err != nil {
		return nil, err
	}
	fetcher := query.NewHTTPFetcher(c.cfg.Client.BaseURL, c.cfg.Client.Token, client)
	fetcher.Retry = retry.DefaultPolicy()
	fetcher.Retry.MaxAttempts = c.cfg.Client.Retry.MaxAttempts
	fetcher.Retry.Backoff = c.cfg.Client.Retry.Backoff
	fetcher.Retry.OnRetry = func(attempt int, reason string) {
		c.logger.Debug("retrying request", "attempt", attempt, "reason", reason)
	}
	return query.NewClient(query.Config{
		Cache:     session.NewStore(session.Config{TTL: c.cfg.Client.TTL, FreshFor: c.cfg.Client.FreshFor}),
		Transport: fetcher,
		Graph:     graph,
		Metrics:   metrics,
		Logger:    c.logger,
	}), nil
}

func (c *cli) httpClient() (*http.Client, error) {
	opts := transport.DefaultOptions()
	opts.CAFile = c.cfg.Client.CAFile
	client, err := transport.NewClient(opts, c.cfg.Client.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	return client, nil
}

// keyFromArg turns a path argument into a canonical cache key.
func keyFromArg(arg string) (string, error) {
	u, err := url.Parse(arg)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(u.Path, "/api/") {
		return "", fmt.Errorf("%q is not an /api/ path", arg)
	}
	return querykeys.Normalize(u.Path, u.RawQuery), nil
}

func newFetchCmd(c *cli) *cobra.Command {
	var (
		repeat   int
		interval time.Duration
		token    string
	)
	cmd := &cobra.Command{
		Use:   "fetch PATH...",
		Short: "Read endpoints through the client session cache",
		Example: "  dashboard fetch /api/dashboard/summary /api/bookings?propertyId=p1 --repeat 2\n" +
			"  dashboard fetch /api/finance/analytics --token manager-token",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token != "" {
				c.cfg.Client.Token = token
			}
			keys := make([]string, 0, len(args))
			for _, arg := range args {
				key, err := keyFromArg(arg)
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}
			metrics := obs.NewMetrics()
			client, err := newQueryClient(c, metrics)
			if err != nil {
				return err
			}
			defer client.Close()

			if repeat < 1 {
				repeat = 1
			}
			for round := 0; round < repeat; round++ {
				if round > 0 && interval > 0 {
					time.Sleep(interval)
				}
				rows := make([]fetchRow, 0, len(keys))
				for _, key := range keys {
					result, err := client.Get(cmd.Context(), key)
					rows = append(rows, fetchRow{
						Key:         key,
						Source:      result.Source,
						ServerCache: result.ServerCache,
						Stale:       result.Stale,
						Age:         result.Age,
						Bytes:       len(result.Data),
						Err:         err,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderFetches(rows))
			}
			stats := client.Cache().Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "session cache: %d active, %d stale, %d expired\n", stats.Active, stats.Stale, stats.Expired)
			if summary, err := metrics.CacheSummary(obs.LayerClient); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "client hit ratio: %.0f%%\n", summary.HitRatio*100)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&repeat, "repeat", "n", 1, "fetch every path this many times")
	flags.DurationVar(&interval, "interval", 0, "pause between repeats")
	flags.StringVar(&token, "token", "", "bearer token (overrides client.token)")
	return cmd
}

func newMutateCmd(c *cli) *cobra.Command {
	var (
		data     string
		warm     []string
		token    string
		mutation string
	)
	cmd := &cobra.Command{
		Use:   "mutate METHOD PATH",
		Short: "Send a write and apply its client-side invalidations",
		Example: "  dashboard mutate POST /api/bookings --data @booking.json --warm /api/bookings --warm /api/dashboard/summary\n" +
			"  dashboard mutate DELETE /api/tasks/123",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token != "" {
				c.cfg.Client.Token = token
			}
			method := strings.ToUpper(args[0])
			var body any
			if data != "" {
				raw, err := readData(data)
				if err != nil {
					return err
				}
				if !json.Valid(raw) {
					return errors.New("--data is not valid JSON")
				}
				body = json.RawMessage(raw)
			}

			client, err := newQueryClient(c, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			for _, arg := range warm {
				key, err := keyFromArg(arg)
				if err != nil {
					return err
				}
				if _, err := client.Get(cmd.Context(), key); err != nil {
					c.logger.Warn("warm failed", "key", key, "err", err)
				}
			}

			result, err := client.Mutate(cmd.Context(), query.MutationRequest{
				Method:   method,
				Path:     args[1],
				Body:     body,
				Mutation: invalidation.Mutation(mutation),
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderReport(result.Status, result.Report))
			if len(result.Body) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), string(result.Body))
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&data, "data", "d", "", "JSON body, or @file to read it from a file")
	flags.StringArrayVar(&warm, "warm", nil, "paths to load into the session cache first")
	flags.StringVar(&token, "token", "", "bearer token (overrides client.token)")
	flags.StringVar(&mutation, "mutation", "", "mutation name when it cannot be derived from the path")
	return cmd
}

func readData(data string) ([]byte, error) {
	if name, ok := strings.CutPrefix(data, "@"); ok {
		return os.ReadFile(name)
	}
	return []byte(data), nil
}
