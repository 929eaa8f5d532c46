package exchange

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeeSplit(t *testing.T) {
	tests := []struct {
		name    string
		v       uint64
		wantNet uint64
		wantFee uint64
	}{
		{"zero", 0, 0, 0},
		{"exact thousand", 1000, 999, 1},
		{"one unit", Scale, 999 * Scale / 1000, Scale / 1000},
		{"rounds down net", 1001, 1000, 1},
		{"tiny amounts all fee", 1, 0, 1},
		{"sub split", 999, 998, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, fee := FeeSplit(tt.v)
			assert.Equal(t, tt.wantNet, net)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.v, net+fee, "split must conserve value")
		})
	}
}

func TestMulDiv(t *testing.T) {
	assert.Equal(t, uint64(200)*Scale, mulDiv(100*Scale, 2*Scale, Scale))
	assert.Equal(t, uint64(0), mulDiv(0, Scale, Scale))
	// Intermediate product overflows 64 bits but the quotient fits.
	assert.Equal(t, uint64(math.MaxUint64/2), mulDiv(math.MaxUint64, 1<<32, 1<<33))
	// Quotient does not fit: saturate.
	assert.Equal(t, uint64(math.MaxUint64), mulDiv(math.MaxUint64, 2, 1))
}

func TestSatMul(t *testing.T) {
	assert.Equal(t, uint64(4)*Scale, satMul(4, Scale))
	assert.Equal(t, uint64(math.MaxUint64), satMul(math.MaxUint64, 2))
	assert.Equal(t, uint64(0), satMul(0, math.MaxUint64))
}

func TestSatSub(t *testing.T) {
	assert.Equal(t, uint64(3), satSub(5, 2))
	assert.Equal(t, uint64(0), satSub(2, 5), "must saturate, never wrap")
	assert.Equal(t, uint64(0), satSub(7, 7))
}
