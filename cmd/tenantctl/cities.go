package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cidadeplus/backend/internal/directory"
	"github.com/cidadeplus/backend/internal/domaincache"
	"github.com/cidadeplus/backend/internal/models"
	"github.com/cidadeplus/backend/internal/tenancy"
)

func citiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cities",
		Short: "Inspect the city directory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every city with its tenant key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := a.db(ctx)
			if err != nil {
				return err
			}
			cities, err := directory.NewRepository(pool).ListCities(ctx)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(cities)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tNAME\tREGION\tACTIVE\tTIMEZONE\tTENANT KEY")
			for _, c := range cities {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", c.Slug, c.Name, c.RegionCode, c.Active, c.Timezone, tenancy.DeriveKey(c.ID))
			}
			return w.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "domains [slug]",
		Short: "List the domains bound to a city",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := a.db(ctx)
			if err != nil {
				return err
			}
			repo := directory.NewRepository(pool)
			city, err := repo.GetCityBySlug(ctx, tenancy.NormalizeSlug(args[0]))
			if err != nil {
				return err
			}
			if city == nil {
				return fmt.Errorf("unknown city %q", args[0])
			}
			domains, err := repo.ListDomains(ctx, city.ID)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(domains)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOMAIN\tPRIMARY\tCANONICAL\tID")
			for _, d := range domains {
				fmt.Fprintf(w, "%s\t%t\t%t\t%s\n", d.Domain, d.IsPrimary, d.IsCanonical, d.ID)
			}
			return w.Flush()
		},
	})
	return cmd
}

// collectingSink keeps the incidents a dry-run resolution would have recorded.
type collectingSink struct {
	got []*models.TenantIncident
}

func (s *collectingSink) Record(_ context.Context, inc *models.TenantIncident) {
	s.got = append(s.got, inc)
}

func resolveCmd(a *app) *cobra.Command {
	var sig tenancy.Signals
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a request's city from its signals without recording anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := a.db(ctx)
			if err != nil {
				return err
			}
			precedence, err := tenancy.ParsePrecedence(a.cfg.Tenancy.Precedence)
			if err != nil {
				return err
			}
			sink := &collectingSink{}
			resolver := tenancy.NewResolver(domaincache.New(directory.NewRepository(pool)),
				tenancy.WithPrecedence(precedence),
				tenancy.WithIncidentSink(sink),
			)
			t, err := resolver.Resolve(ctx, sig)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(struct {
					Tenant    *tenancy.ResolvedTenant  `json:"tenant"`
					Incidents []*models.TenantIncident `json:"incidents"`
				}{t, sink.got})
			}
			fmt.Fprintf(a.out, "city:     %s (%s)\n", t.City.Slug, t.City.Name)
			fmt.Fprintf(a.out, "source:   %s\n", t.Source)
			fmt.Fprintf(a.out, "key:      %s\n", t.Key)
			fmt.Fprintf(a.out, "timezone: %s\n", t.Timezone)
			for _, inc := range sink.got {
				fmt.Fprintf(a.out, "incident: %s %v\n", inc.Type, inc.Context)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sig.Host, "host", "", "Host header")
	cmd.Flags().StringVar(&sig.Header, "header", "", "Override header value (city slug)")
	cmd.Flags().StringVar(&sig.Path, "path", "", "City path segment")
	return cmd
}
