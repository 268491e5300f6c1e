package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cidadeplus/backend/internal/directory"
	"github.com/cidadeplus/backend/internal/domaincache"
	"github.com/cidadeplus/backend/internal/incidents"
	"github.com/cidadeplus/backend/internal/tenancy"
	"github.com/cidadeplus/backend/pkg/queue"
	"github.com/cidadeplus/backend/pkg/storage"
)

func incidentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "Inspect and acknowledge tenant incidents",
	}
	cmd.AddCommand(incidentsListCmd(a))
	cmd.AddCommand(incidentsSummaryCmd(a))
	cmd.AddCommand(incidentsAckCmd(a))
	cmd.AddCommand(incidentsArchivesCmd(a))
	cmd.AddCommand(incidentsDLQCmd(a))
	return cmd
}

func incidentsListCmd(a *app) *cobra.Command {
	var (
		city    string
		typ     string
		unacked bool
		since   time.Duration
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent incidents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := a.db(ctx)
			if err != nil {
				return err
			}
			f := incidents.ListFilter{Type: typ, Unacknowledged: unacked, Limit: limit}
			if since > 0 {
				f.Since = time.Now().Add(-since)
			}
			if city != "" {
				c, err := directory.NewRepository(pool).GetCityBySlug(ctx, tenancy.NormalizeSlug(city))
				if err != nil {
					return err
				}
				if c == nil {
					return fmt.Errorf("unknown city %q", city)
				}
				f.CityID = &c.ID
			}
			list, err := incidents.NewRepository(pool).List(ctx, f)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(list)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tTYPE\tCITY\tSOURCE\tACKED\tID")
			for _, inc := range list {
				cityID := "-"
				if inc.CityID != nil {
					cityID = inc.CityID.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					inc.CreatedAt.Format(time.RFC3339), inc.Type, cityID, inc.Source, inc.AcknowledgedAt != nil, inc.ID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "Only this city (slug)")
	cmd.Flags().StringVar(&typ, "type", "", "Only this incident type")
	cmd.Flags().BoolVar(&unacked, "unacked", false, "Only unacknowledged incidents")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "How far back to look (0 for no limit)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum results")
	return cmd
}

func incidentsSummaryCmd(a *app) *cobra.Command {
	var (
		minutes int
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Count incidents per city and type over a recent window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if minutes <= 0 {
				return fmt.Errorf("--minutes must be positive")
			}
			ctx := cmd.Context()
			pool, err := a.db(ctx)
			if err != nil {
				return err
			}
			var sinks []incidents.Sink
			if archive {
				s3Client, err := a.s3(ctx)
				if err != nil {
					return err
				}
				sinks = append(sinks, incidents.NewArchiveSink(s3Client, ""))
			}
			cities := domaincache.New(directory.NewRepository(pool))
			reporter := incidents.NewReporter(incidents.NewRepository(pool), cities, a.log, sinks...)
			sum, err := reporter.Report(ctx, time.Duration(minutes)*time.Minute)
			if sum == nil {
				return err
			}
			if a.asJSON {
				if jerr := a.printJSON(sum); jerr != nil {
					return jerr
				}
				return err
			}
			fmt.Fprintf(a.out, "%s .. %s  total %d\n", sum.From.Format(time.RFC3339), sum.To.Format(time.RFC3339), sum.Total)
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COUNT\tCITY\tTYPE\tLAST SEEN")
			for _, g := range sum.Groups {
				city := g.CitySlug
				if city == "" {
					city = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", g.Count, city, g.Type, g.LastSeen.Format(time.RFC3339))
			}
			if ferr := w.Flush(); ferr != nil {
				return ferr
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 60, "Window size in minutes")
	cmd.Flags().BoolVar(&archive, "archive", false, "Also upload the summary to the reports bucket")
	return cmd
}

func incidentsAckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ack [id]",
		Short: "Acknowledge an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid incident id: %w", err)
			}
			ctx := cmd.Context()
			pool, err := a.db(ctx)
			if err != nil {
				return err
			}
			inc, err := incidents.NewRepository(pool).Acknowledge(ctx, id, nil, time.Now())
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(inc)
			}
			fmt.Fprintf(a.out, "acknowledged %s (%s)\n", inc.ID, inc.Type)
			return nil
		},
	}
}

func incidentsArchivesCmd(a *app) *cobra.Command {
	var (
		prefix  string
		limit   int
		withURL bool
		minutes int
	)
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List archived summaries in the reports bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if minutes < 0 {
				return fmt.Errorf("--url-minutes must not be negative")
			}
			ctx := cmd.Context()
			s3Client, err := a.s3(ctx)
			if err != nil {
				return err
			}
			if minutes > 0 {
				s3Client.SetPresignExpireMinutes(minutes)
			}
			objects, err := s3Client.List(ctx, prefix, limit)
			if err != nil {
				return err
			}
			var p presigner
			if withURL {
				p = s3Client
			}
			rows, err := archiveRows(ctx, objects, p)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(rows)
			}
			fmt.Fprintf(a.out, "bucket %s\n", s3Client.Bucket())
			return writeArchives(a.out, rows, withURL)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "reports/incidents/", "Key prefix")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum results")
	cmd.Flags().BoolVar(&withURL, "url", false, "Print a pre-signed download link per archive")
	cmd.Flags().IntVar(&minutes, "url-minutes", 0, "Link lifetime in minutes (default from AWS_S3_PRESIGN_EXPIRE_MINUTES)")
	return cmd
}

type presigner interface {
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
}

type archiveRow struct {
	storage.Object
	URL string `json:"url,omitempty"`
}

// archiveRows pairs each object with a download link when p is non-nil.
func archiveRows(ctx context.Context, objects []storage.Object, p presigner) ([]archiveRow, error) {
	rows := make([]archiveRow, 0, len(objects))
	for _, o := range objects {
		row := archiveRow{Object: o}
		if p != nil {
			u, err := p.PresignedDownloadURL(ctx, o.Key)
			if err != nil {
				return nil, fmt.Errorf("presign %s: %w", o.Key, err)
			}
			row.URL = u
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func writeArchives(out io.Writer, rows []archiveRow, withURL bool) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if withURL {
		fmt.Fprintln(w, "MODIFIED\tSIZE\tKEY\tURL")
	} else {
		fmt.Fprintln(w, "MODIFIED\tSIZE\tKEY")
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s", r.LastModified.Format(time.RFC3339), r.Size, r.Key)
		if withURL {
			fmt.Fprintf(w, "\t%s", r.URL)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func incidentsDLQCmd(a *app) *cobra.Command {
	var requeue bool
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Show incidents that failed queued delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rdb, err := a.redisClient(ctx)
			if err != nil {
				return err
			}
			q := queue.NewQueue(rdb.Client, a.log)
			if requeue {
				n, err := q.Requeue(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "requeued %d jobs\n", n)
				return nil
			}
			jobs, err := q.DeadLetters(ctx, 100)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(jobs)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tATTEMPTS\tJOB\tLAST ERROR")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", j.CreatedAt.Format(time.RFC3339), j.Attempt, j.ID, j.LastError)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&requeue, "requeue", false, "Move every dead letter back onto the queue")
	return cmd
}

func (a *app) s3(ctx context.Context) (*storage.S3, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	return storage.NewS3(ctx, storage.S3Config{
		Region:               a.cfg.AWS.Region,
		AccessKeyID:          a.cfg.AWS.AccessKeyID,
		SecretAccessKey:      a.cfg.AWS.SecretAccessKey,
		Bucket:               a.cfg.AWS.ReportsBucket,
		PresignExpireMinutes: a.cfg.AWS.PresignExpireMinutes,
	}, a.log)
}
