package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"unitledger/internal/backup"
	"unitledger/internal/blob"
)

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or import a full snapshot of the store",
	}
	cmd.AddCommand(newBackupExportCmd(a), newBackupImportCmd(a))
	return cmd
}

func newBackupExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [key]",
		Short: "Write a snapshot to the configured blob store",
		Long:  "Write a snapshot to the configured blob store. The key defaults to backups/<UTC timestamp>.json.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key := backup.Key(time.Now())
			if len(args) == 1 {
				key = args[0]
			}
			blobs, err := blob.Open(ctx, a.cfg.BlobOptions())
			if err != nil {
				return err
			}
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			info, err := backup.Export(ctx, rt.store, blobs, key)
			if err != nil {
				return err
			}
			entries, _ := strconv.Atoi(info.Metadata["entries"])
			a.logger.Info("backup written", "key", info.Key, "driver", string(blobs.Driver()))
			return render(a.out, a.output, backupView{Key: info.Key, Entries: entries, Size: info.Size})
		},
	}
}

func newBackupImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <key>",
		Short: "Replace the store contents with a snapshot from the blob store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			blobs, err := blob.Open(ctx, a.cfg.BlobOptions())
			if err != nil {
				return err
			}
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			doc, err := backup.Import(ctx, rt.store, blobs, args[0])
			if err != nil {
				return err
			}
			a.logger.Info("backup restored", "key", args[0], "created_at", doc.CreatedAt)
			return render(a.out, a.output, backupView{Key: args[0], Entries: doc.Entries})
		},
	}
}
