package hedger

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var chunkIndexMetrics = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "hedgehog_chunk_index",
		Help: "",
	}, []string{"operation_type", "operation_id", "symbol_spot"})

var totalChunksMetrics = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "hedgehog_total_chunks",
		Help: "",
	}, []string{"operation_type", "operation_id", "symbol_spot"})

var cumulativeSpotFilledValueMetrics = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "hedgehog_cumulative_spot_filled_value",
		Help: "",
	}, []string{"operation_type", "operation_id", "symbol_spot"})

var cumulativeFuturesFilledValueMetrics = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "hedgehog_cumulative_futures_filled_value",
		Help: "",
	}, []string{"operation_type", "operation_id", "symbol_spot"})

var perChunkImbalanceRatioMetrics = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "hedgehog_per_chunk_imbalance_ratio",
		Help: "",
	}, []string{"operation_type", "operation_id", "symbol_spot"})

func init() {
	prometheus.MustRegister(
		chunkIndexMetrics,
		totalChunksMetrics,
		cumulativeSpotFilledValueMetrics,
		cumulativeFuturesFilledValueMetrics,
		perChunkImbalanceRatioMetrics,
	)
}

func reportMetrics(state *OperationState) {
	labels := prometheus.Labels{
		"operation_type": state.OperationType.String(),
		"operation_id":   strconv.FormatInt(state.OperationID, 10),
		"symbol_spot":    state.SymbolSpot,
	}
	chunkIndexMetrics.With(labels).Set(float64(state.CurrentChunkIndex))
	totalChunksMetrics.With(labels).Set(float64(state.TotalChunks))
	cumulativeSpotFilledValueMetrics.With(labels).Set(state.CumulativeSpotFilledValue.Float64())
	cumulativeFuturesFilledValueMetrics.With(labels).Set(state.CumulativeFuturesFilledValue.Float64())

	spotVal := state.CumulativeSpotFilledValue.Float64()
	futVal := state.CumulativeFuturesFilledValue.Float64()
	base := spotVal
	if futVal > base {
		base = futVal
	}
	if base > 0 {
		imbalance := spotVal - futVal
		if imbalance < 0 {
			imbalance = -imbalance
		}
		perChunkImbalanceRatioMetrics.With(labels).Set(imbalance / base)
	}
}
