package physmem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kmem/kernel/mem"
)

func TestReserve(t *testing.T) {
	region, err := Reserve(3*mem.PageSize + 1)
	require.NoError(t, err)
	defer region.Release()

	assert.True(t, mem.PageAligned(region.Start), "region start must be page-aligned")
	assert.Equal(t, 4*mem.PageSize, region.Size())

	data, err := region.Bytes(region.Start, region.Size())
	require.NoError(t, err)
	for i, b := range data {
		if b != 0 {
			t.Fatalf("expected reserved memory to be zero-filled; byte %d is 0x%x", i, b)
		}
	}

	// writes through one view are visible through another
	data[mem.PageSize] = 0xaa
	page, err := region.Bytes(region.Start+uintptr(mem.PageSize), 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0xaa), page[0])
}

func TestReserveInvalidSize(t *testing.T) {
	_, err := Reserve(mem.PageSize - 1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestReserveHostError(t *testing.T) {
	defer func(orig func(mem.Size) ([]byte, uintptr, error)) { reserveFn = orig }(reserveFn)

	expErr := errors.New("no address space left")
	reserveFn = func(mem.Size) ([]byte, uintptr, error) {
		return nil, 0, expErr
	}

	_, err := Reserve(mem.PageSize)
	require.Error(t, err)
	assert.ErrorIs(t, err, expErr)
}

func TestRegionBounds(t *testing.T) {
	region, err := Reserve(2 * mem.PageSize)
	require.NoError(t, err)
	defer region.Release()

	specs := []struct {
		addr     uintptr
		size     mem.Size
		expValid bool
	}{
		{region.Start, 2 * mem.PageSize, true},
		{region.Start + uintptr(mem.PageSize), mem.PageSize, true},
		{region.End, 0, true},
		{region.Start - 1, 1, false},
		{region.End, 1, false},
		{region.Start + uintptr(mem.PageSize), mem.PageSize + 1, false},
	}

	for specIndex, spec := range specs {
		assert.Equal(t, spec.expValid, region.Contains(spec.addr, spec.size), "spec %d", specIndex)

		_, err := region.Bytes(spec.addr, spec.size)
		if spec.expValid {
			assert.NoError(t, err, "spec %d", specIndex)
		} else {
			assert.ErrorIs(t, err, ErrOutOfRegion, "spec %d", specIndex)
		}
	}
}

func TestRegionRelease(t *testing.T) {
	region, err := Reserve(mem.PageSize)
	require.NoError(t, err)

	require.NoError(t, region.Release())
	require.NoError(t, region.Release(), "second release must be a no-op")

	_, err = region.Bytes(region.Start, 1)
	assert.ErrorIs(t, err, ErrOutOfRegion)
}
