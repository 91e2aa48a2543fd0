package render

// Advance widths of standard Helvetica in 1/1000 em for WinAnsi codes 32..126.
var helveticaASCII = [...]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space../
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556, // 0..?
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778, // @..O
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556, // P.._
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // `..o
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584, // p..~
}

// widths of the upper half of WinAnsi which differ from the default
var helveticaHigh = map[byte]int{
	0x82: 222, 0x84: 333, 0x85: 1000, 0x8B: 333, 0x91: 222, 0x92: 222, 0x93: 333,
	0x94: 333, 0x95: 350, 0x96: 556, 0x97: 1000, 0x99: 1000, 0x9B: 333, 0xA0: 278,
	0xA9: 737, 0xAB: 556, 0xAE: 737, 0xB0: 400, 0xBB: 556,
}

const (
	defaultGlyphWidth = 556
	// bold face is set with regular metrics widened by this factor
	boldFactor = 1.08
)

func glyphWidth(b byte) int {
	switch {
	case b >= 32 && b <= 126:
		return helveticaASCII[b-32]
	case b < 32:
		return 0
	}
	if w, ok := helveticaHigh[b]; ok {
		return w
	}
	return defaultGlyphWidth
}

// textWidth returns width of WinAnsi encoded text in points.
func textWidth(s []byte, size float64) float64 {
	var units int
	for _, b := range s {
		units += glyphWidth(b)
	}
	return float64(units) * size / 1000
}
