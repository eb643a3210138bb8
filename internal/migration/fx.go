package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/copybill/internal/clock"
	"github.com/smallbiznis/copybill/internal/seed"
	"github.com/smallbiznis/copybill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg db.Config, opts Options, node *snowflake.Node, clk clock.Clock, log *zap.Logger) error {
		ctx := context.Background()
		if err := Run(ctx, conn, cfg.Type, opts); err != nil {
			return err
		}
		log.Info("schema ready", zap.String("type", cfg.Type), zap.Bool("archive", opts.Archive))

		if !opts.Seed {
			return nil
		}
		return seed.EnsureDemoFleet(ctx, conn, node, clk.Now(), opts.Archive)
	}),
)
