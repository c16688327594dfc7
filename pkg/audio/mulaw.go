package audio

// G.711 μ-law codec (ITU-T G.711, μ-law companding as used on North American
// and Japanese trunks). Telephony providers hand us μ-law at 8 kHz; the STT
// and TTS sides speak linear PCM at 16 kHz, so the two exported functions
// below fold the resampling step in.

const (
	// mulawBias is the G.711 μ-law encoder bias (0x84 = 132).
	mulawBias = 0x84

	// mulawClip is the largest magnitude representable after biasing.
	mulawClip = 32635
)

// DecodeMuLawToPCM16 converts μ-law audio at inRate Hz into linear PCM int16
// LE at 16 kHz. inRate is normally 8000 for phone audio; passing 16000 skips
// the resampling step.
func DecodeMuLawToPCM16(mulaw []byte, inRate int) []byte {
	pcm := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		s := decodeMuLawSample(b)
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	if inRate != 16000 {
		pcm = Resample(pcm, inRate, 16000)
	}
	return pcm
}

// EncodePCM16ToMuLaw converts linear PCM int16 LE at 16 kHz into μ-law audio
// at outRate Hz. outRate is normally 8000 for phone audio. Resampling happens
// before encoding so the companding sees the target-rate signal.
func EncodePCM16ToMuLaw(pcm []byte, outRate int) []byte {
	if outRate != 16000 {
		pcm = Resample(pcm, 16000, outRate)
	}
	out := make([]byte, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = encodeMuLawSample(s)
	}
	return out
}

// decodeMuLawSample expands one μ-law byte to a linear int16 sample.
// The byte arrives bit-inverted; after inversion it is sign(1) | exponent(3) |
// mantissa(4), reconstructed as ((mantissa<<3)+bias)<<exponent − bias.
func decodeMuLawSample(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	linear := ((int32(mantissa) << 3) + mulawBias) << exponent
	linear -= mulawBias

	if sign != 0 {
		linear = -linear
	}
	return int16(linear)
}

// encodeMuLawSample compresses one linear int16 sample to a μ-law byte.
// Bias, locate the highest set bit for the exponent (0..7), take the four
// mantissa bits below it, assemble sign|exponent|mantissa, and bit-invert.
func encodeMuLawSample(s int16) byte {
	x := int32(s)
	var sign byte
	if x < 0 {
		sign = 0x80
		x = -x
	}
	if x > mulawClip {
		x = mulawClip
	}
	x += mulawBias

	// Exponent is the position of the most significant bit in bits 7..14.
	exponent := byte(7)
	for mask := int32(0x4000); mask > 0x80 && x&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(x>>(exponent+3)) & 0x0F

	return ^(sign | exponent<<4 | mantissa)
}
