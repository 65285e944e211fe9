package source

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Dr-Fate/RegularityTracker/internal/fix"
	"github.com/Dr-Fate/RegularityTracker/internal/geo"
)

// hdopToMeters approximates horizontal accuracy from dilution of precision
const hdopToMeters = 5.0

// TrackPoint is a GPX trkpt with the fields a fix can use
type TrackPoint struct {
	Lat        float64   `xml:"lat,attr"`
	Lon        float64   `xml:"lon,attr"`
	Time       time.Time `xml:"time"`
	HDOP       *float64  `xml:"hdop"`
	Satellites int       `xml:"sat"`
	Speed      *float64  `xml:"speed"` // GPX 1.0, m/s
}

// TrackSegment is a GPX trkseg
type TrackSegment struct {
	Points []TrackPoint `xml:"trkpt"`
}

// Track is a GPX trk
type Track struct {
	Name     string         `xml:"name,omitempty"`
	Segments []TrackSegment `xml:"trkseg"`
}

// GPX is the subset of a GPX document used for replay
type GPX struct {
	XMLName xml.Name `xml:"gpx"`
	Creator string   `xml:"creator,attr"`
	Tracks  []Track  `xml:"trk"`
}

// ParseGPXFile reads a GPX file
func ParseGPXFile(filename string) (*GPX, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseGPX(file)
}

// ParseGPX decodes GPX from r
func ParseGPX(r io.Reader) (*GPX, error) {
	var doc GPX
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}
	return &doc, nil
}

// Fixes converts every timed track point into a fix. Distances and, when the
// file carries no speed, speeds are derived from consecutive positions.
// Segment breaks restart the distance chain.
func (g *GPX) Fixes() ([]fix.GeoFix, error) {
	var out []fix.GeoFix
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			var prev *TrackPoint
			for i := range seg.Points {
				p := &seg.Points[i]
				if p.Time.IsZero() {
					continue
				}
				f := fix.GeoFix{
					Timestamp:   p.Time.UnixMilli(),
					Lat:         p.Lat,
					Lon:         p.Lon,
					HasPosition: true,
					Satellites:  p.Satellites,
				}
				if p.HDOP != nil {
					f.Accuracy = fix.AccuracyOf(*p.HDOP * hdopToMeters)
				}
				if prev != nil {
					f.DistanceFromPrevious = geo.DistanceM(prev.Lat, prev.Lon, p.Lat, p.Lon)
				}
				switch {
				case p.Speed != nil:
					f.Speed = *p.Speed
				case prev != nil:
					if dt := p.Time.Sub(prev.Time).Seconds(); dt > 0 {
						f.Speed = f.DistanceFromPrevious / dt
					}
				}
				out = append(out, f)
				prev = p
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoPoints
	}
	return out, nil
}
