package colorconv

import "fmt"

// Range is the quantization range of the Y'CbCr samples.
type Range int

const (
	// LimitedRange puts luma in [16, 235] and chroma in [16, 240].
	LimitedRange Range = iota
	// FullRange uses the whole [0, 255] interval for every component.
	FullRange
)

func (r Range) String() string {
	switch r {
	case LimitedRange:
		return "limited"
	case FullRange:
		return "full"
	default:
		return fmt.Sprintf("Range(%d)", int(r))
	}
}

// Matrix selects the luma coefficients used to derive R'G'B'.
type Matrix int

const (
	BT709 Matrix = iota
	BT601
)

func (m Matrix) String() string {
	switch m {
	case BT709:
		return "bt709"
	case BT601:
		return "bt601"
	default:
		return fmt.Sprintf("Matrix(%d)", int(m))
	}
}

// Params selects the range and matrix of a conversion.
type Params struct {
	Range  Range
	Matrix Matrix
}

// DefaultParams is limited range BT.709.
var DefaultParams = Params{Range: LimitedRange, Matrix: BT709}

// ParseRange accepts "limited" or "full".
func ParseRange(s string) (Range, error) {
	switch s {
	case "limited", "":
		return LimitedRange, nil
	case "full":
		return FullRange, nil
	default:
		return 0, fmt.Errorf("unknown yuv range %q", s)
	}
}

// ParseMatrix accepts "bt709" or "bt601".
func ParseMatrix(s string) (Matrix, error) {
	switch s {
	case "bt709", "":
		return BT709, nil
	case "bt601":
		return BT601, nil
	default:
		return 0, fmt.Errorf("unknown yuv matrix %q", s)
	}
}

// fixed-point precision of the conversion coefficients.
const fixShift = 16

// coefficients are the integer multipliers of one Params combination,
// scaled by 1<<fixShift.
type coefficients struct {
	yOffset int
	yMul    int
	vToR    int
	uToG    int
	vToG    int
	uToB    int
}

func (p Params) coefficients() coefficients {
	kr, kb := 0.2126, 0.0722
	if p.Matrix == BT601 {
		kr, kb = 0.299, 0.114
	}
	kg := 1 - kr - kb

	yScale, cScale, yOffset := 1.0, 1.0, 0
	if p.Range == LimitedRange {
		yScale = 255.0 / 219.0
		cScale = 255.0 / 224.0
		yOffset = 16
	}

	fix := func(v float64) int {
		f := v * (1 << fixShift)
		if f < 0 {
			return int(f - 0.5)
		}
		return int(f + 0.5)
	}

	return coefficients{
		yOffset: yOffset,
		yMul:    fix(yScale),
		vToR:    fix(2 * (1 - kr) * cScale),
		uToG:    fix(2 * kb * (1 - kb) / kg * cScale),
		vToG:    fix(2 * kr * (1 - kr) / kg * cScale),
		uToB:    fix(2 * (1 - kb) * cScale),
	}
}

// FullRangeTables returns lookup tables that map this range's luma and chroma samples
// onto full range. For FullRange both tables are the identity.
func (p Params) FullRangeTables() (luma, chroma [256]uint8) {
	for i := 0; i < 256; i++ {
		if p.Range == FullRange {
			luma[i], chroma[i] = uint8(i), uint8(i)
			continue
		}
		luma[i] = clamp(((i-16)*255*2 + 219) / (219 * 2))
		chroma[i] = clamp(128 + ((i-128)*255*2+sign(i-128)*224)/(224*2))
	}
	return luma, chroma
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
