package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tierstore/internal/api"
	"tierstore/internal/auth"
	"tierstore/internal/config"
	"tierstore/internal/server"
)

func newAdminCmd(cfg *config.Config, structured *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminForceStorageCmd(cfg, structured))
	cmd.AddCommand(newAdminCacheGCCmd(cfg, structured))
	cmd.AddCommand(newAdminHashTokenCmd())
	return cmd
}

type forceStorageRunner func(ctx context.Context, limit int) (api.ForceStorageResponse, error)

func newAdminForceStorageCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var (
		limit int
		all   bool
		local bool
	)

	cmd := &cobra.Command{
		Use:   "force-storage",
		Short: "Move attachments into the configured storage tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}

			run := func(runBatch forceStorageRunner) error {
				batches, err := runForceStorage(cmd.Context(), runBatch, limit, all)
				if err != nil {
					return err
				}
				if *structured {
					if len(batches) == 1 {
						return writeStructured(batches[0])
					}
					return writeStructured(batches)
				}
				for _, batch := range batches {
					if err := writeForceStorageBatch(batch); err != nil {
						return err
					}
				}
				return nil
			}

			if local {
				svc, closeStore, err := openLocalService(cfg)
				if err != nil {
					return err
				}
				defer closeStore()
				ctx := server.WithAdmin(cmd.Context())
				return run(func(_ context.Context, limit int) (api.ForceStorageResponse, error) {
					result, err := svc.ForceStorageBatch(ctx, limit)
					return result.Response(), err
				})
			}
			return withClient(cfg, func(client *api.Client) error {
				return run(func(ctx context.Context, limit int) (api.ForceStorageResponse, error) {
					return client.ForceStorage(ctx, api.ForceStorageRequest{Limit: limit})
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "records per batch (default: storage.force_batch_size)")
	cmd.Flags().BoolVar(&all, "all", false, "repeat batches until nothing is left to move")
	cmd.Flags().BoolVar(&local, "local", false, "operate on the database directly instead of through the server")
	return cmd
}

// runForceStorage runs one batch, or with all set keeps going until nothing
// remains or a batch makes no progress.
func runForceStorage(ctx context.Context, runBatch forceStorageRunner, limit int, all bool) ([]api.ForceStorageResponse, error) {
	var batches []api.ForceStorageResponse
	for {
		if err := ctx.Err(); err != nil {
			return batches, err
		}
		batch, err := runBatch(ctx, limit)
		if err != nil {
			return batches, err
		}
		batches = append(batches, batch)
		if !all || batch.Remaining == 0 || batch.Moved == 0 {
			return batches, nil
		}
	}
}

func writeForceStorageBatch(batch api.ForceStorageResponse) error {
	if batch.Selected == 0 {
		return writePlain("all attachments are stored in %s\n", batch.Target)
	}
	return writePlain("moved %d of %d to %s (ids %d-%d), %d remaining; swept %d cache files (%s)\n",
		batch.Moved, batch.Selected, batch.Target, batch.FirstID, batch.LastID, batch.Remaining,
		batch.Sweep.Files, humanize.IBytes(uint64(max(batch.Sweep.Bytes, 0))))
}

func newAdminCacheGCCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var (
		hours float64
		local bool
	)

	cmd := &cobra.Command{
		Use:   "cache-gc",
		Short: "Remove cached remote content not accessed since now+hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.CacheGCResponse
			if local {
				svc, closeStore, err := openLocalService(cfg)
				if err != nil {
					return err
				}
				defer closeStore()
				result, err := svc.CacheGC(cmd.Context(), hours)
				if err != nil {
					return err
				}
				resp = server.ToCacheGCResponse(result)
			} else {
				err := withClient(cfg, func(client *api.Client) error {
					var err error
					resp, err = client.CacheGC(cmd.Context(), api.CacheGCRequest{Hours: &hours})
					return err
				})
				if err != nil {
					return err
				}
			}

			if *structured {
				return writeStructured(resp)
			}
			return writePlain("removed %d files and %d directories (%s), %d failed\n",
				resp.Files, resp.Dirs, humanize.IBytes(uint64(max(resp.Bytes, 0))), resp.Failed)
		},
	}

	cmd.Flags().Float64Var(&hours, "hours", server.DefaultCacheGCHours, "cutoff relative to now; negative values look back")
	cmd.Flags().BoolVar(&local, "local", false, "operate on the cache directory directly instead of through the server")
	return cmd
}

func newAdminHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Hash an admin token for admin.token_hash (generates one when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				generated, err := auth.GenerateToken()
				if err != nil {
					return err
				}
				token = generated
				if err := writePlain("token: %s\n", token); err != nil {
					return err
				}
			}
			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			return writePlain("token_hash: %s\n", hash)
		},
	}
}
