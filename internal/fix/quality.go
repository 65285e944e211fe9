package fix

// SignalQuality is a coarse label for the number of satellites in use
type SignalQuality int

const (
	SignalNone SignalQuality = iota
	SignalWeak
	SignalMedium
	SignalExcellent
)

// QualityOf classifies a satellite count
func QualityOf(satellites int) SignalQuality {
	switch {
	case satellites >= 9:
		return SignalExcellent
	case satellites >= 6:
		return SignalMedium
	case satellites >= 1:
		return SignalWeak
	default:
		return SignalNone
	}
}

// Label returns the on-screen text
func (q SignalQuality) Label() string {
	switch q {
	case SignalExcellent:
		return "GPS: Excelente"
	case SignalMedium:
		return "GPS: Medio"
	case SignalWeak:
		return "GPS: Débil"
	default:
		return "Sin señal"
	}
}
