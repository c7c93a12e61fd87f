package hedger

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
)

// maxPerChunkValueImbalanceRatio bounds how far a single chunk's spot and
// futures notional may drift apart before the planner rejects the chunk
// count and tries a smaller one.
var maxPerChunkValueImbalanceRatio = decimal.NewFromFloat(0.15)

var tolerance = decimal.New(1, -12)

// ChunkPlan is the output of CalculateAutoChunkParameters.
type ChunkPlan struct {
	ChunkCount           uint32
	ChunkSpotQuantity    fixedpoint.Value
	ChunkFuturesQuantity fixedpoint.Value
}

// CalculateAutoChunkParameters finds the largest chunk count, at most
// targetChunkCount, for which every chunk satisfies minimum order quantity,
// minimum notional value, and the per-chunk value-balance ratio. It starts
// at targetChunkCount and decrements until a feasible count is found or 1 is
// rejected, in which case the operation is infeasible.
func CalculateAutoChunkParameters(
	overallTargetSpot, overallTargetFutures fixedpoint.Value,
	currentSpotPrice, currentFuturesPriceEstimate fixedpoint.Value,
	targetChunkCount uint32,
	minSpotQuantity, minFuturesQuantity fixedpoint.Value,
	spotQuantityStep, futuresQuantityStep fixedpoint.Value,
	minSpotNotionalValue, minFuturesNotionalValue *fixedpoint.Value,
) (ChunkPlan, error) {
	if targetChunkCount == 0 {
		return ChunkPlan{}, errors.Wrap(ErrPlanInfeasible, "target chunk count cannot be zero")
	}
	if !currentSpotPrice.IsPositive() || !currentFuturesPriceEstimate.IsPositive() {
		return ChunkPlan{}, errors.Wrap(ErrPlanInfeasible, "current spot and futures prices must be positive")
	}
	if !overallTargetSpot.IsPositive() {
		return ChunkPlan{}, errors.Wrap(ErrPlanInfeasible, "overall target spot quantity must be positive")
	}
	if !overallTargetFutures.IsPositive() {
		return ChunkPlan{}, &PlanInfeasibleError{
			OverallTargetSpot:    overallTargetSpot.String(),
			OverallTargetFutures: overallTargetFutures.String(),
			Reason:               "overall target futures quantity must be positive for hedge",
		}
	}

	spot := overallTargetSpot.Decimal()
	fut := overallTargetFutures.Decimal()
	spotPrice := currentSpotPrice.Decimal()
	futPrice := currentFuturesPriceEstimate.Decimal()
	minSpotQ := minSpotQuantity.Decimal()
	minFutQ := minFuturesQuantity.Decimal()
	spotStep := spotQuantityStep.Decimal()
	futStep := futuresQuantityStep.Decimal()

	spotToFutRatio := decimal.NewFromInt(1)
	if !fut.IsZero() {
		spotToFutRatio = spot.Div(fut)
	} else {
		logrus.Warn("overall target futures quantity is zero in ratio calculation, using ratio 1.0")
	}

	numberOfChunks := targetChunkCount
	if numberOfChunks == 0 {
		numberOfChunks = 1
	}

	for {
		if numberOfChunks == 0 {
			return ChunkPlan{}, &PlanInfeasibleError{
				OverallTargetSpot:    overallTargetSpot.String(),
				OverallTargetFutures: overallTargetFutures.String(),
				Reason:               "failed to find suitable chunk size (chunk count reached 0); review min order sizes and total targets",
			}
		}

		numChunksDecimal := decimal.NewFromInt(int64(numberOfChunks))

		chunkFuturesRaw := fut.DivRound(numChunksDecimal, 24)
		chunkFutures := roundUpStepDecimal(chunkFuturesRaw, futStep)

		if chunkFutures.LessThan(minFutQ) && chunkFutures.Abs().GreaterThan(tolerance) {
			if numberOfChunks == 1 {
				return ChunkPlan{}, &PlanInfeasibleError{
					OverallTargetSpot:    overallTargetSpot.String(),
					OverallTargetFutures: overallTargetFutures.String(),
					Reason:               "futures chunk quantity for 1 chunk is below the futures minimum quantity",
				}
			}
			numberOfChunks--
			continue
		}
		if chunkFutures.LessThan(tolerance) && minFutQ.GreaterThanOrEqual(tolerance) {
			if numberOfChunks == 1 {
				return ChunkPlan{}, &PlanInfeasibleError{
					OverallTargetSpot:    overallTargetSpot.String(),
					OverallTargetFutures: overallTargetFutures.String(),
					Reason:               "futures chunk quantity is zero for 1 chunk but the futures minimum quantity is non-zero",
				}
			}
			numberOfChunks--
			continue
		}

		targetSpotForChunk := chunkFutures.Mul(spotToFutRatio)
		chunkSpot := roundUpStepDecimal(targetSpotForChunk, spotStep)

		if chunkSpot.LessThan(minSpotQ) && chunkSpot.Abs().GreaterThan(tolerance) {
			if numberOfChunks == 1 {
				return ChunkPlan{}, &PlanInfeasibleError{
					OverallTargetSpot:    overallTargetSpot.String(),
					OverallTargetFutures: overallTargetFutures.String(),
					Reason:               "spot chunk quantity for 1 chunk is below the spot minimum quantity",
				}
			}
			numberOfChunks--
			continue
		}
		if chunkSpot.LessThan(tolerance) && minSpotQ.GreaterThanOrEqual(tolerance) {
			if numberOfChunks == 1 {
				return ChunkPlan{}, &PlanInfeasibleError{
					OverallTargetSpot:    overallTargetSpot.String(),
					OverallTargetFutures: overallTargetFutures.String(),
					Reason:               "spot chunk quantity is zero for 1 chunk but the spot minimum quantity is non-zero",
				}
			}
			numberOfChunks--
			continue
		}

		chunkSpotValueEstimate := chunkSpot.Mul(spotPrice)
		spotNotionalOK := true
		if minSpotNotionalValue != nil {
			minVal := minSpotNotionalValue.Decimal()
			spotNotionalOK = chunkSpotValueEstimate.GreaterThanOrEqual(minVal) ||
				(chunkSpotValueEstimate.LessThan(tolerance) && minVal.LessThan(tolerance))
		}

		chunkFuturesValueEstimate := chunkFutures.Mul(futPrice)
		futuresNotionalOK := true
		if minFuturesNotionalValue != nil {
			minVal := minFuturesNotionalValue.Decimal()
			futuresNotionalOK = chunkFuturesValueEstimate.GreaterThanOrEqual(minVal) ||
				(chunkFuturesValueEstimate.LessThan(tolerance) && minVal.LessThan(tolerance))
		}

		if !spotNotionalOK || !futuresNotionalOK {
			if numberOfChunks == 1 {
				return ChunkPlan{}, &PlanInfeasibleError{
					OverallTargetSpot:    overallTargetSpot.String(),
					OverallTargetFutures: overallTargetFutures.String(),
					Reason:               "failed to meet minimum notional value for 1 chunk",
				}
			}
			numberOfChunks--
			continue
		}

		chunkValueImbalance := chunkSpotValueEstimate.Sub(chunkFuturesValueEstimate).Abs()

		nineZeros := decimal.New(1, -9)
		var valueComparisonBase decimal.Decimal
		if chunkSpotValueEstimate.GreaterThan(tolerance) && chunkFuturesValueEstimate.GreaterThan(tolerance) {
			valueComparisonBase = decimal.Max(chunkSpotValueEstimate, chunkFuturesValueEstimate)
		} else {
			sum := chunkSpotValueEstimate.Abs().Add(chunkFuturesValueEstimate.Abs())
			valueComparisonBase = decimal.Max(sum, tolerance)
		}

		var perChunkImbalanceRatio decimal.Decimal
		switch {
		case valueComparisonBase.GreaterThan(nineZeros):
			perChunkImbalanceRatio = chunkValueImbalance.DivRound(valueComparisonBase, 24)
		case chunkValueImbalance.GreaterThan(nineZeros):
			perChunkImbalanceRatio = decimal.New(1, 100) // effectively unbounded, forces rejection
		default:
			perChunkImbalanceRatio = decimal.Zero
		}

		perChunkImbalanceOK := perChunkImbalanceRatio.LessThanOrEqual(maxPerChunkValueImbalanceRatio)

		if numberOfChunks == 1 && !perChunkImbalanceOK {
			return ChunkPlan{}, &PlanInfeasibleError{
				OverallTargetSpot:    overallTargetSpot.String(),
				OverallTargetFutures: overallTargetFutures.String(),
				Reason:               "cannot achieve per-chunk value balance even with 1 chunk",
			}
		}

		if perChunkImbalanceOK {
			spotVal, _ := fixedpoint.NewFromString(chunkSpot.String())
			futVal, _ := fixedpoint.NewFromString(chunkFutures.String())
			return ChunkPlan{
				ChunkCount:           numberOfChunks,
				ChunkSpotQuantity:    spotVal,
				ChunkFuturesQuantity: futVal,
			}, nil
		}

		numberOfChunks--
	}
}

// roundUpStepDecimal rounds a value up to the nearest step, operating on
// raw decimal.Decimal so the planner's internal loop never leaves
// fixedpoint.Value's parsed-string precision assumptions.
func roundUpStepDecimal(value, step decimal.Decimal) decimal.Decimal {
	if step.IsNegative() {
		return decimal.Zero
	}
	if step.IsZero() {
		return value
	}
	if !value.IsPositive() {
		if value.IsZero() {
			return decimal.Zero
		}
		return decimal.Zero
	}

	positiveStep := step.Abs()
	internalPrecision := maxInt32(int32(value.Exponent()*-1), int32(positiveStep.Exponent()*-1)) + int32(positiveStep.Exponent()*-1) + 5

	valueRounded := value.Round(internalPrecision)
	stepRounded := positiveStep.Round(internalPrecision)

	if stepRounded.IsZero() {
		return value
	}
	return valueRounded.DivRound(stepRounded, internalPrecision).Ceil().Mul(stepRounded)
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
