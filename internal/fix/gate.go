package fix

// Gate confirms that motion is real before a timed run starts.
// It fires after Required consecutive good fixes; any bad fix resets the count.
type Gate struct {
	MinSpeedKmh  float64
	MaxAccuracyM float64
	Required     int

	count int
}

// NewGate creates a gate with the given thresholds
func NewGate(minSpeedKmh, maxAccuracyM float64, required int) *Gate {
	if required < 1 {
		required = 1
	}
	return &Gate{
		MinSpeedKmh:  minSpeedKmh,
		MaxAccuracyM: maxAccuracyM,
		Required:     required,
	}
}

// Good reports whether f counts towards stabilization
func (g *Gate) Good(f GeoFix) bool {
	return f.SpeedKmh() >= g.MinSpeedKmh && f.Accuracy.Within(g.MaxAccuracyM)
}

// Observe feeds one fix and reports whether the gate fired.
// Once fired the count is cleared so the gate can be reused.
func (g *Gate) Observe(f GeoFix) bool {
	if !g.Good(f) {
		g.count = 0
		return false
	}
	g.count++
	if g.count >= g.Required {
		g.count = 0
		return true
	}
	return false
}

// Count returns the current number of consecutive good fixes
func (g *Gate) Count() int {
	return g.count
}

// Reset clears the consecutive counter
func (g *Gate) Reset() {
	g.count = 0
}
