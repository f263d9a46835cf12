package render

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const mrcHeaderWords = 256

// WriteMRC writes a mode 2 (float32) MRC2014 map. values are row-major over
// shape with the last axis fastest, so shape is (z, y, x); pixelSizes follow
// the same axis order.
func WriteMRC(w io.Writer, values []float32, shape [3]int, pixelSizes [3]float64) error {
	nz, ny, nx := shape[0], shape[1], shape[2]
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return fmt.Errorf("mrc: bad shape %v", shape)
	}
	if len(values) != nx*ny*nz {
		return fmt.Errorf("mrc: %d values for shape %v", len(values), shape)
	}

	dmin, dmax, sum := float32(math.Inf(1)), float32(math.Inf(-1)), 0.0
	for _, v := range values {
		if v < dmin {
			dmin = v
		}
		if v > dmax {
			dmax = v
		}
		sum += float64(v)
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	rms := math.Sqrt(sq / float64(len(values)))

	var hdr [mrcHeaderWords * 4]byte
	le := binary.LittleEndian
	putI := func(word int, v int32) { le.PutUint32(hdr[4*word:], uint32(v)) }
	putF := func(word int, v float32) { le.PutUint32(hdr[4*word:], math.Float32bits(v)) }

	putI(0, int32(nx))
	putI(1, int32(ny))
	putI(2, int32(nz))
	putI(3, 2) // mode: float32
	putI(7, int32(nx))
	putI(8, int32(ny))
	putI(9, int32(nz))
	putF(10, float32(float64(nx)*pixelSizes[2]))
	putF(11, float32(float64(ny)*pixelSizes[1]))
	putF(12, float32(float64(nz)*pixelSizes[0]))
	putF(13, 90)
	putF(14, 90)
	putF(15, 90)
	putI(16, 1)
	putI(17, 2)
	putI(18, 3)
	putF(19, dmin)
	putF(20, dmax)
	putF(21, float32(mean))
	putI(22, 1)     // space group
	putI(27, 20140) // NVERSION
	copy(hdr[52*4:], "MAP ")
	hdr[53*4], hdr[53*4+1] = 0x44, 0x44 // little endian stamp
	putF(54, float32(rms))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return binary.Write(w, le, values)
}
