// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// defaultStatusAddr matches the default metrics listener.
const defaultStatusAddr = "127.0.0.1:9100"

// ProbeStatus is the result of one health probe.
type ProbeStatus struct {
	Probe  string `json:"probe"`
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type statusConfig struct {
	addr       string
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running RecipeBox server",
		Long: `Query the liveness and readiness probes of a running server through
its metrics listener. Exits non-zero when the server is not ready.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, cfg, http.DefaultClient)
		},
	}
	cmd.Flags().StringVar(&cfg.addr, "addr", defaultStatusAddr, "metrics/health address of the server")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "per-probe timeout")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, cfg *statusConfig, client *http.Client) error {
	if ctx == nil {
		ctx = context.Background()
	}
	base := cfg.addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	probes := []ProbeStatus{
		probe(ctx, client, base, "liveness", cfg.timeout),
		probe(ctx, client, base, "readiness", cfg.timeout),
	}

	if cfg.jsonOutput {
		out, err := json.MarshalIndent(probes, "", "  ")
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		cmd.Println(string(out))
	} else {
		cmd.Print(formatStatusTable(probes))
	}

	for _, p := range probes {
		if !p.OK {
			return oops.Code("SERVER_NOT_READY").With("probe", p.Probe).Errorf("%s probe failed", p.Probe)
		}
	}
	return nil
}

func probe(ctx context.Context, client *http.Client, base, name string, timeout time.Duration) ProbeStatus {
	status := ProbeStatus{Probe: name}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz/"+name, http.NoBody)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	status.Status = resp.StatusCode
	status.OK = resp.StatusCode == http.StatusOK
	if !status.OK {
		status.Error = http.StatusText(resp.StatusCode)
	}
	return status
}

func formatStatusTable(probes []ProbeStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROBE\tSTATE\tDETAIL")
	for _, p := range probes {
		state := "ok"
		detail := "-"
		if !p.OK {
			state = "failing"
			detail = p.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Probe, state, detail)
	}
	_ = w.Flush()
	return sb.String()
}
