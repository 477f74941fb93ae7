package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SeqOne/vt/internal/vidx"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <in.vcf>",
		Short: "Build the site index of a plain-text VCF",
		Long: `Writes <in.vcf>.vidx, a SQLite index of the byte offset of every record,
so that interval queries on uncompressed VCFs use random access. Compressed
VCFs should be indexed with tabix instead.`,
		Example: `  vt index calls.vcf`,
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer func() { _ = logger.Sync() }()

			n, err := vidx.Build(args[0])
			if err != nil {
				return err
			}
			logger.Info("index built",
				zap.String("index", vidx.PathFor(args[0])),
				zap.Int("records", n))
			return nil
		},
	}
}
