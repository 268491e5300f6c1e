package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cidadeplus/backend/internal/domaincache"
)

func cacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Control the domain cache of running instances",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate",
		Short: "Tell every instance to rebuild its domain cache",
		Long: `Publishes an invalidation notice. Use it after editing the
directory tables by hand; changes made through the API invalidate on their own.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rdb, err := a.redisClient(ctx)
			if err != nil {
				return err
			}
			inv := domaincache.NewRedisInvalidator(rdb.Client, nil, a.log)
			if err := inv.Broadcast(ctx); err != nil {
				return fmt.Errorf("publish invalidation: %w", err)
			}
			fmt.Fprintln(a.out, "invalidation published")
			return nil
		},
	})
	return cmd
}
