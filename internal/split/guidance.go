package split

// Guidance is the advisory shown after a split
type Guidance int

const (
	GuidanceNone Guidance = iota
	OnPace
	Accelerate // behind the ideal
	Decelerate // ahead of the ideal
)

// DefaultThresholdMs is the tolerance around the ideal time
const DefaultThresholdMs = 100

// Classify compares the last split with its ideal.
// diff = ideal - split, so a positive diff means the split came early.
func Classify(splits, ideals []int64, thresholdMs int64) (Guidance, int64) {
	if len(splits) == 0 || len(ideals) < len(splits) {
		return GuidanceNone, 0
	}
	last := len(splits) - 1
	diff := ideals[last] - splits[last]
	switch {
	case diff > thresholdMs:
		return Decelerate, diff
	case diff < -thresholdMs:
		return Accelerate, diff
	default:
		return OnPace, diff
	}
}

func (g Guidance) String() string {
	switch g {
	case OnPace:
		return "on_pace"
	case Accelerate:
		return "accelerate"
	case Decelerate:
		return "decelerate"
	default:
		return "none"
	}
}

// Label returns the on-screen advisory text
func (g Guidance) Label() string {
	switch g {
	case OnPace:
		return "¡Perfecto!"
	case Accelerate:
		return "¡Acelerar!"
	case Decelerate:
		return "¡Desacelerar!"
	default:
		return ""
	}
}

// MarshalText encodes the guidance by name
func (g Guidance) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText decodes a guidance name
func (g *Guidance) UnmarshalText(text []byte) error {
	switch string(text) {
	case "on_pace":
		*g = OnPace
	case "accelerate":
		*g = Accelerate
	case "decelerate":
		*g = Decelerate
	default:
		*g = GuidanceNone
	}
	return nil
}
