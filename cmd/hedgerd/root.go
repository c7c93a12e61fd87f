// Command hedgerd drives one chunked two-leg hedge or unhedge operation
// against Binance spot + USDT-M futures from the command line, wiring
// pkg/hedger's engine to pkg/exchange/binanceadapter and a sqlite-backed
// pkg/storage.GormStore via a cobra/viper/pflag root command.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/codingconcepts/env"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/thedr-lul/hedgehog/pkg/hedger"
)

var (
	cfgFile string
	v       = viper.New()
)

// runtimeEnv holds the small per-process knobs that override the config
// file when set — the "small struct, env tag loading" half of the ambient
// config stack, separate from the bulk Config below.
type runtimeEnv struct {
	StalePriceRatio      float64 `env:"WS_STALE_PRICE_RATIO"`
	MaxValueImbalanceRatio float64 `env:"WS_MAX_VALUE_IMBALANCE_RATIO"`
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hedgerd",
		Short: "Chunked two-leg hedge/unhedge execution engine",
		Long: "hedgerd runs one hedge or unhedge operation to completion: it partitions " +
			"the target into chunks, places paired spot/futures limit orders over a live " +
			"market-data feed, and reconciles any residual imbalance with market orders.",
	}

	// Config-file keys use underscores; flags use dashes. Normalizing here
	// lets either spelling work on the command line.
	root.PersistentFlags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./hedgerd.yaml)")
	root.PersistentFlags().String("quote-currency", "USDT", "quote currency for spot/futures symbols")
	root.PersistentFlags().Uint32("chunk-count", 10, "planner chunk-count hint (k0)")
	root.PersistentFlags().String("limit-strategy", string(hedger.OneTickInside), "BestAskBid or OneTickInside")
	root.PersistentFlags().String("store-path", "hedgerd.sqlite3", "sqlite path for terminal operation records")

	_ = v.BindPFlags(root.PersistentFlags())
	cobra.OnInitialize(initConfig)

	root.AddCommand(newHedgeCmd(), newUnhedgeCmd())
	return root
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("hedgerd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("HEDGERD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		logrus.WithError(err).Debug("no config file found; using flags and env only")
	}
}

// loadConfig builds a hedger.Config from DefaultConfig plus the
// quote-currency, chunk-count and limit-strategy keys read from viper
// (flags, file or env), then overlays the small env-tag-loaded knobs via
// codingconcepts/env. Other Config fields keep their defaults.
func loadConfig() hedger.Config {
	cfg := hedger.DefaultConfig()
	cfg.QuoteCurrency = v.GetString("quote-currency")
	cfg.WsAutoChunkTargetCount = v.GetUint32("chunk-count")
	cfg.WsLimitOrderPlacementStrategy = hedger.LimitOrderPlacementStrategy(v.GetString("limit-strategy"))

	var rt runtimeEnv
	if err := env.Set(&rt); err != nil {
		logrus.WithError(err).Debug("no runtime env overrides set")
	}
	if rt.StalePriceRatio > 0 {
		cfg.WsStalePriceRatio = &rt.StalePriceRatio
	}
	if rt.MaxValueImbalanceRatio > 0 {
		cfg.WsMaxValueImbalanceRatio = &rt.MaxValueImbalanceRatio
	}
	return cfg
}

func logProgress(u hedger.ProgressUpdate) {
	logrus.WithFields(logrus.Fields{
		"operation_id": u.OperationID,
		"type":         u.OperationType,
		"status":       u.Status,
		"chunk":        fmt.Sprintf("%d/%d", u.CurrentChunkIndex, u.TotalChunks),
		"spot_filled":  u.CumulativeSpotFilledQuantity.String(),
		"fut_filled":   u.CumulativeFuturesFilledQuantity.String(),
	}).Info("progress")
}

func requireEnv(name string) string {
	val := os.Getenv(name)
	if val == "" {
		logrus.Fatalf("missing required environment variable %s", name)
	}
	return val
}

func newOperationID() int64 {
	return time.Now().UnixNano()
}
