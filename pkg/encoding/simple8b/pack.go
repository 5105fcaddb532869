package simple8b

// pack240/pack120 encode runs of 1s using zero payload bits; the selector
// alone carries the count.
func pack240(src []uint64) uint64 { return 0 }
func pack120(src []uint64) uint64 { return 0 }

func unpack240(v uint64, dst *[240]uint64) {
	for i := 0; i < 240; i++ {
		dst[i] = 1
	}
}

func unpack120(v uint64, dst *[240]uint64) {
	for i := 0; i < 120; i++ {
		dst[i] = 1
	}
}

// packN/unpackN pack/unpack n values using bits bits each into the 60
// payload bits of the word, the first value in the least significant bits.
func packN(src []uint64, bits uint) uint64 {
	var v uint64
	for i, x := range src {
		v |= x << (uint(i) * bits)
	}
	return v
}

func unpackN(v uint64, bits uint, n int, dst *[240]uint64) {
	mask := uint64(1)<<bits - 1
	for i := 0; i < n; i++ {
		dst[i] = (v >> (uint(i) * bits)) & mask
	}
}

func pack60(src []uint64) uint64 { return packN(src, 1) }
func pack30(src []uint64) uint64 { return packN(src, 2) }
func pack20(src []uint64) uint64 { return packN(src, 3) }
func pack15(src []uint64) uint64 { return packN(src, 4) }
func pack12(src []uint64) uint64 { return packN(src, 5) }
func pack10(src []uint64) uint64 { return packN(src, 6) }
func pack8(src []uint64) uint64  { return packN(src, 7) }
func pack7(src []uint64) uint64  { return packN(src, 8) }
func pack6(src []uint64) uint64  { return packN(src, 10) }
func pack5(src []uint64) uint64  { return packN(src, 12) }
func pack4(src []uint64) uint64  { return packN(src, 15) }
func pack3(src []uint64) uint64  { return packN(src, 20) }
func pack2(src []uint64) uint64  { return packN(src, 30) }
func pack1(src []uint64) uint64  { return packN(src, 60) }

func unpack60(v uint64, dst *[240]uint64) { unpackN(v, 1, 60, dst) }
func unpack30(v uint64, dst *[240]uint64) { unpackN(v, 2, 30, dst) }
func unpack20(v uint64, dst *[240]uint64) { unpackN(v, 3, 20, dst) }
func unpack15(v uint64, dst *[240]uint64) { unpackN(v, 4, 15, dst) }
func unpack12(v uint64, dst *[240]uint64) { unpackN(v, 5, 12, dst) }
func unpack10(v uint64, dst *[240]uint64) { unpackN(v, 6, 10, dst) }
func unpack8(v uint64, dst *[240]uint64)  { unpackN(v, 7, 8, dst) }
func unpack7(v uint64, dst *[240]uint64)  { unpackN(v, 8, 7, dst) }
func unpack6(v uint64, dst *[240]uint64)  { unpackN(v, 10, 6, dst) }
func unpack5(v uint64, dst *[240]uint64)  { unpackN(v, 12, 5, dst) }
func unpack4(v uint64, dst *[240]uint64)  { unpackN(v, 15, 4, dst) }
func unpack3(v uint64, dst *[240]uint64)  { unpackN(v, 20, 3, dst) }
func unpack2(v uint64, dst *[240]uint64)  { unpackN(v, 30, 2, dst) }
func unpack1(v uint64, dst *[240]uint64)  { unpackN(v, 60, 1, dst) }
