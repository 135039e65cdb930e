package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/routing"
	"github.com/goliatone/go-ingress/webhooks"
	"github.com/spf13/cobra"
)

type endpointRow struct {
	Endpoint   string `json:"endpoint"`
	Provider   string `json:"provider"`
	Scheme     string `json:"scheme"`
	Registered bool   `json:"registered"`
	Routes     int    `json:"routes"`
}

type providersReport struct {
	Schemes   []string      `json:"schemes"`
	Endpoints []endpointRow `json:"endpoints"`
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List signature schemes and the configured endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.ResolveConfig(cmd.Context(),
			core.NewCfgxConfigProvider(core.FileConfigLoader{Path: settings.ConfigFile, Required: settings.ConfigRequired}),
			core.GoOptionsResolver{},
			core.Config{},
		)
		if err != nil {
			return err
		}
		if err := routing.ValidateConfig(cfg); err != nil {
			return err
		}
		report := buildProvidersReport(cfg, webhooks.NewProviderRegistry())
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return printProvidersReport(cmd.OutOrStdout(), report)
	},
}

func buildProvidersReport(cfg core.Config, registry *webhooks.ProviderRegistry) providersReport {
	schemes := registry.Names()
	report := providersReport{Schemes: schemes, Endpoints: []endpointRow{}}
	for _, name := range cfg.EndpointNames() {
		endpoint := cfg.Endpoints[name]
		scheme := endpoint.SchemeName()
		report.Endpoints = append(report.Endpoints, endpointRow{
			Endpoint:   name,
			Provider:   endpoint.Provider,
			Scheme:     scheme,
			Registered: slices.Contains(schemes, scheme),
			Routes:     len(endpoint.Routes),
		})
	}
	return report
}

func printProvidersReport(w io.Writer, report providersReport) error {
	fmt.Fprintf(w, "schemes: %v\n\n", report.Schemes)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tPROVIDER\tSCHEME\tREGISTERED\tROUTES")
	for _, row := range report.Endpoints {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\n", row.Endpoint, row.Provider, row.Scheme, row.Registered, row.Routes)
	}
	return tw.Flush()
}
