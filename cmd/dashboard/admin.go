package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"rental_dashboard/internal/admin"
	"rental_dashboard/internal/transport"
)

func newStatsCmd(c *cli) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show response cache statistics from the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.httpClient()
			if err != nil {
				return err
			}
			defer transport.CloseIdle(client)
			body, err := fetchStats(cmd.Context(), client, c.cfg.Client.AdminURL, c.cfg.Admin.Token)
			if err != nil {
				return err
			}
			if raw {
				_, err = cmd.OutOrStdout().Write(append(body, '\n'))
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStats(body, time.Now()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw JSON document")
	return cmd
}

func fetchStats(ctx context.Context, client *http.Client, baseURL string, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/admin/cache/stats", nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("admin stats: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func newPurgeCmd(c *cli) *cobra.Command {
	var (
		addr     string
		mutation string
		prefix   string
		all      bool
		caFile   string
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Purge server cache entries over the admin gRPC API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			set := 0
			for _, v := range []bool{mutation != "", prefix != "", all} {
				if v {
					set++
				}
			}
			if set != 1 {
				return errors.New("exactly one of --mutation, --prefix or --all is required")
			}
			if addr == "" {
				addr = c.cfg.Admin.GRPCAddr
			}
			if addr == "" {
				return errors.New("no admin grpc address; set admin.grpc_addr or --grpc")
			}

			creds := insecure.NewCredentials()
			if caFile != "" {
				tlsCreds, err := credentials.NewClientTLSFromFile(caFile, "")
				if err != nil {
					return err
				}
				creds = tlsCreds
			}
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), c.cfg.Client.HTTPTimeout)
			defer cancel()
			ctx = admin.WithToken(ctx, c.cfg.Admin.Token)
			client := admin.NewCacheAdminClient(conn)

			var result *structpb.Struct
			switch {
			case mutation != "":
				result, err = client.Invalidate(ctx, mutation)
			default:
				result, err = client.Purge(ctx, prefix)
			}
			if err != nil {
				return err
			}
			out, err := protojson.Marshal(result)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&addr, "grpc", "", "admin gRPC address (defaults to admin.grpc_addr)")
	flags.StringVar(&mutation, "mutation", "", "purge what a mutation such as booking.created invalidates")
	flags.StringVar(&prefix, "prefix", "", "purge entries under a path prefix")
	flags.BoolVar(&all, "all", false, "purge every entry")
	flags.StringVar(&caFile, "ca", "", "CA file for a TLS admin listener")
	return cmd
}
