package hedger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
)

func fp(t *testing.T, s string) fixedpoint.Value {
	t.Helper()
	v, err := fixedpoint.NewFromString(s)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return v
}

func fpPtr(t *testing.T, s string) *fixedpoint.Value {
	v := fp(t, s)
	return &v
}

func assertQty(t *testing.T, want string, got fixedpoint.Value) {
	t.Helper()
	assert.Equal(t, 0, fp(t, want).Compare(got), "want %s, got %s", want, got.String())
}

func TestCalculateAutoChunkParameters_SimpleHedgeTenChunks(t *testing.T) {
	plan, err := CalculateAutoChunkParameters(
		fp(t, "0.5"), fp(t, "0.5"),
		fp(t, "2000"), fp(t, "2001"),
		10,
		fp(t, "0.001"), fp(t, "0.001"),
		fp(t, "0.001"), fp(t, "0.001"),
		fpPtr(t, "10"), fpPtr(t, "10"),
	)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, uint32(10), plan.ChunkCount)
	assertQty(t, "0.05", plan.ChunkSpotQuantity)
	assertQty(t, "0.05", plan.ChunkFuturesQuantity)
}

func TestCalculateAutoChunkParameters_MinQtyForcesFiveChunks(t *testing.T) {
	plan, err := CalculateAutoChunkParameters(
		fp(t, "0.5"), fp(t, "0.5"),
		fp(t, "2000"), fp(t, "2000"),
		10,
		fp(t, "0.001"), fp(t, "0.1"),
		fp(t, "0.001"), fp(t, "0.001"),
		fpPtr(t, "10"), fpPtr(t, "10"),
	)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, uint32(5), plan.ChunkCount)
	assertQty(t, "0.1", plan.ChunkSpotQuantity)
	assertQty(t, "0.1", plan.ChunkFuturesQuantity)
}

func TestCalculateAutoChunkParameters_MinNotionalForcesFive(t *testing.T) {
	plan, err := CalculateAutoChunkParameters(
		fp(t, "1"), fp(t, "1"),
		fp(t, "50"), fp(t, "50"),
		10,
		fp(t, "0.001"), fp(t, "0.001"),
		fp(t, "0.001"), fp(t, "0.001"),
		fpPtr(t, "10"), nil,
	)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, uint32(5), plan.ChunkCount)
	assertQty(t, "0.2", plan.ChunkSpotQuantity)
	assertQty(t, "0.2", plan.ChunkFuturesQuantity)
}

func TestCalculateAutoChunkParameters_Infeasible(t *testing.T) {
	_, err := CalculateAutoChunkParameters(
		fp(t, "0.1"), fp(t, "1"),
		fp(t, "50"), fp(t, "50"),
		10,
		fp(t, "0.001"), fp(t, "0.001"),
		fp(t, "0.001"), fp(t, "0.001"),
		fpPtr(t, "10"), nil,
	)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrPlanInfeasible)
	var planErr *PlanInfeasibleError
	assert.ErrorAs(t, err, &planErr)
}

func TestCalculateAutoChunkParameters_ZeroChunkCountRejected(t *testing.T) {
	_, err := CalculateAutoChunkParameters(
		fp(t, "1"), fp(t, "1"),
		fp(t, "50"), fp(t, "50"),
		0,
		fp(t, "0.001"), fp(t, "0.001"),
		fp(t, "0.001"), fp(t, "0.001"),
		nil, nil,
	)
	assert.ErrorIs(t, err, ErrPlanInfeasible)
}
