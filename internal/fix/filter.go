package fix

// Reason explains why a fix was rejected
type Reason int

const (
	ReasonNone          Reason = iota
	ReasonNonMonotonic         // time delta <= 0 since the previous accepted fix
	ReasonTooFast              // derived speed above the plausible maximum
	ReasonTooFar               // per-fix distance above the plausible maximum
	ReasonInaccurate           // known accuracy worse than the limit
	ReasonInvalid              // negative or non-finite distance
	ReasonMultiBoundary        // crosses several km boundaries and the policy rejects it
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNonMonotonic:
		return "non_monotonic"
	case ReasonTooFast:
		return "too_fast"
	case ReasonTooFar:
		return "too_far"
	case ReasonInaccurate:
		return "inaccurate"
	case ReasonInvalid:
		return "invalid"
	case ReasonMultiBoundary:
		return "multi_boundary"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of a plausibility check
type Verdict struct {
	Accepted bool
	Reason   Reason
	DeltaM   float64 // distance from the previous accepted fix, when accepted
}

func accept(deltaM float64) Verdict { return Verdict{Accepted: true, DeltaM: deltaM} }

func reject(r Reason) Verdict { return Verdict{Reason: r} }

// Filter rejects physically implausible fixes
type Filter struct {
	MaxAccuracyM float64 // worse (larger) known accuracy is rejected
	MaxSpeedKmh  float64 // derived speed limit
	MaxDistanceM float64 // per-fix distance limit
}

// DefaultFilter returns thresholds suited to a road vehicle sampled at ~1 Hz
func DefaultFilter() Filter {
	return Filter{
		MaxAccuracyM: 25,  // typical open-sky fix is under 10m
		MaxSpeedKmh:  250, // well above any regularity stage
		MaxDistanceM: 500, // ~7s gap at 250 km/h
	}
}

// Check decides whether next is plausible given the previous accepted fix.
// With no previous fix only the accuracy is checked.
func (f Filter) Check(prev *GeoFix, next GeoFix) Verdict {
	if !next.Accuracy.Within(f.MaxAccuracyM) {
		return reject(ReasonInaccurate)
	}
	if prev == nil {
		return accept(0)
	}

	dt := next.Timestamp - prev.Timestamp
	if dt <= 0 {
		return reject(ReasonNonMonotonic)
	}

	d := Delta(*prev, next)
	if !isFinite(d) || d < 0 {
		return reject(ReasonInvalid)
	}
	if d > f.MaxDistanceM {
		return reject(ReasonTooFar)
	}

	// m/ms -> km/h
	derivedKmh := d / float64(dt) * 3600
	if derivedKmh > f.MaxSpeedKmh {
		return reject(ReasonTooFast)
	}

	return accept(d)
}
