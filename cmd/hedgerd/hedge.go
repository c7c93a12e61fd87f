package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/thedr-lul/hedgehog/pkg/exchange/binanceadapter"
	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/hedger"
	"github.com/thedr-lul/hedgehog/pkg/storage"
)

func newHedgeCmd() *cobra.Command {
	var base string
	var spotValue string
	var futuresQty string
	var operationID int64

	cmd := &cobra.Command{
		Use:   "hedge",
		Short: "Open a new delta-neutral hedge for one base asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := fixedpoint.NewFromString(spotValue)
			if err != nil {
				return errors.Wrap(err, "parse --spot-value")
			}
			futTarget, err := fixedpoint.NewFromString(futuresQty)
			if err != nil {
				return errors.Wrap(err, "parse --futures-qty")
			}
			if operationID == 0 {
				operationID = newOperationID()
			}
			return runOperation(cmd.Context(), operationID, base, func(ctx context.Context, cfg hedger.Config, xchg *binanceadapter.Client) (*hedger.OperationState, error) {
				return hedger.InitializeHedge(ctx, cfg, xchg, operationID, base, target, futTarget)
			})
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "base asset symbol, e.g. BTC (required)")
	cmd.Flags().StringVar(&spotValue, "spot-value", "", "quote-currency value to spend on spot (required)")
	cmd.Flags().StringVar(&futuresQty, "futures-qty", "", "futures contract quantity to short (required)")
	cmd.Flags().Int64Var(&operationID, "operation-id", 0, "operation id (default: generated)")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("spot-value")
	_ = cmd.MarkFlagRequired("futures-qty")

	return cmd
}

func newUnhedgeCmd() *cobra.Command {
	var base string
	var originalSpotQty string
	var futuresQty string
	var operationID int64

	cmd := &cobra.Command{
		Use:   "unhedge",
		Short: "Close a prior hedge for one base asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			origQty, err := fixedpoint.NewFromString(originalSpotQty)
			if err != nil {
				return errors.Wrap(err, "parse --original-spot-qty")
			}
			futTarget, err := fixedpoint.NewFromString(futuresQty)
			if err != nil {
				return errors.Wrap(err, "parse --futures-qty")
			}
			if operationID == 0 {
				operationID = newOperationID()
			}
			return runOperation(cmd.Context(), operationID, base, func(ctx context.Context, cfg hedger.Config, xchg *binanceadapter.Client) (*hedger.OperationState, error) {
				return hedger.InitializeUnhedge(ctx, cfg, xchg, operationID, base, origQty, futTarget)
			})
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "base asset symbol, e.g. BTC (required)")
	cmd.Flags().StringVar(&originalSpotQty, "original-spot-qty", "", "base-asset quantity originally bought by the hedge (required)")
	cmd.Flags().StringVar(&futuresQty, "futures-qty", "", "futures contract quantity to buy back (required)")
	cmd.Flags().Int64Var(&operationID, "operation-id", 0, "operation id of the hedge being closed (required)")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("original-spot-qty")
	_ = cmd.MarkFlagRequired("futures-qty")
	_ = cmd.MarkFlagRequired("operation-id")

	return cmd
}

// runOperation wires one binanceadapter.Client, one sqlite-backed GormStore,
// and a live combined-stream Stream into a hedger.Task and drives it to a
// terminal status. init builds the OperationState via InitializeHedge or
// InitializeUnhedge; everything else is shared between the two subcommands.
func runOperation(
	ctx context.Context,
	operationID int64,
	base string,
	init func(context.Context, hedger.Config, *binanceadapter.Client) (*hedger.OperationState, error),
) error {
	cfg := loadConfig()
	xchg := binanceadapter.NewClient(requireEnv("BINANCE_API_KEY"), requireEnv("BINANCE_API_SECRET"))

	db, err := gorm.Open(sqlite.Open(v.GetString("store-path")), &gorm.Config{})
	if err != nil {
		return errors.Wrap(err, "open sqlite store")
	}
	store, err := storage.NewGormStore(db)
	if err != nil {
		return errors.Wrap(err, "build gorm store")
	}

	state, err := init(ctx, cfg, xchg)
	if err != nil {
		return errors.Wrap(err, "initialize operation")
	}

	spotListenKey, futuresListenKey, err := xchg.StartListenKeys(ctx)
	if err != nil {
		return errors.Wrap(err, "start listen keys")
	}

	stream := &binanceadapter.Stream{
		SpotSymbol:       state.SymbolSpot,
		FuturesSymbol:    state.SymbolFutures,
		SpotListenKey:    spotListenKey,
		FuturesListenKey: futuresListenKey,
	}
	incoming, err := stream.Connect(ctx)
	if err != nil {
		return errors.Wrap(err, "connect market data stream")
	}
	defer stream.Close()

	keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
	defer stopKeepalive()
	go xchg.KeepaliveListenKeys(keepaliveCtx, spotListenKey, futuresListenKey)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	cancelCh := make(chan struct{})
	go func() {
		<-sigCh
		logrus.WithField("operation_id", operationID).Info("received interrupt; requesting cancellation")
		close(cancelCh)
	}()

	task := &hedger.Task{
		State:    state,
		Config:   cfg,
		Exchange: xchg,
		Store:    store,
		Progress: logProgress,
		Incoming: incoming,
		Cancel:   cancelCh,
	}

	logrus.WithFields(logrus.Fields{
		"operation_id": operationID,
		"symbol_spot":  state.SymbolSpot,
		"chunks":       state.TotalChunks,
	}).Info("starting operation")

	return task.Run(ctx)
}
