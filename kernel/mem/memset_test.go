package mem_test

import (
	"testing"

	"kmem/kernel/mem"
	"kmem/kernel/mem/physmem"
)

// reserve returns a region living outside the Go heap so that Memset can be
// handed raw addresses inside it.
func reserve(t *testing.T, size mem.Size) *physmem.Region {
	region, err := physmem.Reserve(size)
	if err != nil {
		t.Fatalf("unable to reserve %d bytes: %v", size, err)
	}
	t.Cleanup(func() { region.Release() })
	return region
}

func regionBytes(t *testing.T, region *physmem.Region) []byte {
	buf, err := region.Bytes(region.Start, region.Size())
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestMemset(t *testing.T) {
	// memset with a 0 size should be a no-op
	mem.Memset(uintptr(0), 0x00, 0)

	for pageCount := uint32(1); pageCount <= 10; pageCount++ {
		region := reserve(t, mem.PageSize<<pageCount)
		buf := regionBytes(t, region)
		for i := 0; i < len(buf); i++ {
			buf[i] = 0xFE
		}

		mem.Memset(region.Start, 0x05, region.Size())

		for i := 0; i < len(buf); i++ {
			if got := buf[i]; got != 0x05 {
				t.Errorf("[block with %d pages] expected byte: %d to be 0x05; got 0x%x", pageCount, i, got)
				break
			}
		}
	}
}

func TestMemsetPartial(t *testing.T) {
	region := reserve(t, mem.PageSize)
	buf := regionBytes(t, region)

	mem.Memset(region.Start+10, 0x01, 33)

	for i, b := range buf {
		exp := byte(0)
		if i >= 10 && i < 43 {
			exp = 0x01
		}
		if b != exp {
			t.Fatalf("expected byte %d to be 0x%x; got 0x%x", i, exp, b)
		}
	}
}
