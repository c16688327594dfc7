package audio

import "math"

// Polyphase rational-ratio resampler. The ratio dstRate/srcRate is reduced by
// gcd to L/M, the signal is conceptually upsampled by L, lowpass-filtered with
// a windowed-sinc FIR, and decimated by M — but only the output taps are ever
// computed. Linear interpolation is deliberately not used here: its aliasing
// is audible on telephony speech.

// sincZeroCrossings controls the filter length: taps span this many sinc
// zero crossings on each side of center.
const sincZeroCrossings = 8

// Resample converts mono int16 LE PCM from srcRate to dstRate. It returns the
// input unchanged when the rates match. Output length is ceil(n·L/M) samples.
func Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}

	g := gcd(srcRate, dstRate)
	up := dstRate / g
	down := srcRate / g

	src := bytesToSamples(pcm)
	dst := resamplePoly(src, up, down)
	return samplesToBytes(dst)
}

// resamplePoly computes the polyphase filtered output for an up/down rational
// ratio. Edges are zero-padded; for 20 ms telephony frames the resulting edge
// attenuation stays below first-order-filter artifacts.
func resamplePoly(src []float64, up, down int) []float64 {
	h := designFilter(up, down)
	halfLen := (len(h) - 1) / 2

	n := len(src)
	outLen := (n*up + down - 1) / down
	out := make([]float64, outLen)

	for j := range out {
		// Position on the virtual upsampled grid, centered on the filter.
		t := j*down + halfLen
		phase := t % up
		idx := t / up

		var acc float64
		for k := phase; k < len(h); k += up {
			i := idx - (k-phase)/up
			if i < 0 {
				break
			}
			if i >= n {
				continue
			}
			acc += h[k] * src[i]
		}
		out[j] = acc
	}
	return out
}

// designFilter builds the prototype lowpass FIR: a Hamming-windowed sinc with
// cutoff at the narrower of the two Nyquist frequencies, scaled by the
// upsampling factor to preserve amplitude.
func designFilter(up, down int) []float64 {
	maxRatio := up
	if down > maxRatio {
		maxRatio = down
	}
	cutoff := 1.0 / float64(maxRatio)

	halfLen := sincZeroCrossings * maxRatio
	n := 2*halfLen + 1
	h := make([]float64, n)

	for i := range n {
		x := float64(i - halfLen)
		s := cutoff * sinc(cutoff*x)
		// Hamming window.
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		h[i] = float64(up) * s * w
	}
	return h
}

// sinc is the normalised sinc function sin(πx)/(πx).
func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func bytesToSamples(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := range n {
		out[i] = float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
	}
	return out
}

func samplesToBytes(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		s := int32(math.Round(v))
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
