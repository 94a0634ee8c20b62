package domain

import (
	"fmt"
	"strconv"
)

// Position is a GeoJSON position: longitude, latitude, elevation.
type Position [3]float64

// Geometry is a GeoJSON Polygon with a single outer ring.
type Geometry struct {
	Type        string       `json:"type"`
	Coordinates [][]Position `json:"coordinates"`
}

// Properties are the indexed attributes of one bilingual area alert.
type Properties struct {
	Identifier string `json:"identifier"`
	Area       string `json:"area"`
	Reference  string `json:"reference"`
	Zone       string `json:"zone"`
	Headline   string `json:"headline"`
	Titre      string `json:"titre"`
	DescripEN  string `json:"descrip_en"`
	DescripFR  string `json:"descrip_fr"`
	Effective  string `json:"effective"`
	Expires    string `json:"expires"`
	AlertType  string `json:"alert_type"`
	Status     string `json:"status"`
	URL        string `json:"url"`
}

// Feature is one GeoJSON Feature per alerted area.
type Feature struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Geometry   Geometry   `json:"geometry"`
}

// Ring returns the outer ring of the feature geometry.
func (f Feature) Ring() []Position {
	if len(f.Geometry.Coordinates) == 0 {
		return nil
	}
	return f.Geometry.Coordinates[0]
}

// Pairing describes the bilingual sets left after expiry filtering.
type Pairing struct {
	English int
	French  int
	// Unmatched lists English keys with no French alert and French keys with
	// no English alert.
	Unmatched []string
}

// Complete reports whether features can be emitted.
func (p Pairing) Complete() bool {
	return p.English == p.French
}

// Result is the outcome of transforming one document.
type Result struct {
	Identifier string
	Features   []Feature
	Pairing    Pairing
}

// Transform converts a parsed CAP document into bilingual features, using the
// package clock as processing time. url is published as the url property of
// every feature. An incomplete pairing is not an error: the result carries no
// features and its Pairing explains why.
func Transform(doc *Document, url string) (Result, error) {
	now := clock.Now().UTC()

	english, french := collectAlerts(doc, url, now)
	english, french, err := dropExpired(english, french, now)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", doc.Identifier, err)
	}

	res := Result{
		Identifier: doc.Identifier,
		Pairing:    pairing(english, french),
	}
	if !res.Pairing.Complete() {
		return res, nil
	}

	features, err := assemble(doc.Identifier, english, french)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", doc.Identifier, err)
	}
	res.Features = features
	return res, nil
}

func pairing(english *alertSet[EnglishAlert], french *alertSet[FrenchAlert]) Pairing {
	p := Pairing{English: english.len(), French: french.len()}
	for _, key := range english.keys {
		if _, ok := french.get(key); !ok {
			p.Unmatched = append(p.Unmatched, key)
		}
	}
	for _, key := range french.keys {
		if _, ok := english.get(key); !ok {
			p.Unmatched = append(p.Unmatched, key)
		}
	}
	return p
}

func assemble(reference string, english *alertSet[EnglishAlert], french *alertSet[FrenchAlert]) ([]Feature, error) {
	features := make([]Feature, 0, english.len())
	for _, key := range english.keys {
		en := english.items[key]
		fr, ok := french.get(key)
		if !ok {
			return nil, fmt.Errorf("%w: area %s", ErrUnpaired, key)
		}
		ring, err := BuildRing(en.Coords)
		if err != nil {
			return nil, fmt.Errorf("area %s: %w", key, err)
		}
		features = append(features, Feature{
			Type: "Feature",
			Properties: Properties{
				Identifier: en.AreaKey,
				Area:       en.AreaDesc,
				Reference:  reference,
				Zone:       fr.AreaDesc,
				Headline:   en.Headline,
				Titre:      fr.Headline,
				DescripEN:  en.Description,
				DescripFR:  fr.Description,
				Effective:  FormatCAPTime(en.Effective),
				Expires:    FormatCAPTime(en.Expires),
				AlertType:  en.WarningType,
				Status:     en.Status,
				URL:        en.URL,
			},
			Geometry: Geometry{
				Type:        "Polygon",
				Coordinates: [][]Position{ring},
			},
		})
	}
	return features, nil
}

// BuildRing converts CAP-ordered tokens (lat0, lon0, lat1, lon1, ...) into a
// GeoJSON ring. Pairs are walked last to first and swapped to lon/lat with a
// zero elevation. Repeated positions are dropped keeping their first
// occurrence, then the last position of the walk is appended to close the ring.
func BuildRing(tokens []string) ([]Position, error) {
	if len(tokens) < 2 {
		return nil, fmt.Errorf("%w: %d coordinate tokens", ErrDegeneratePolygon, len(tokens))
	}
	if len(tokens)%2 != 0 {
		return nil, fmt.Errorf("%w: odd coordinate count %d", ErrDegeneratePolygon, len(tokens))
	}

	walk := make([]Position, 0, len(tokens)/2)
	for i := len(tokens) - 2; i >= 0; i -= 2 {
		lat, err := strconv.ParseFloat(tokens[i], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: latitude %q", ErrDegeneratePolygon, tokens[i])
		}
		lon, err := strconv.ParseFloat(tokens[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: longitude %q", ErrDegeneratePolygon, tokens[i+1])
		}
		walk = append(walk, Position{lon, lat, 0})
	}

	seen := make(map[Position]struct{}, len(walk))
	ring := make([]Position, 0, len(walk)+1)
	for _, p := range walk {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		ring = append(ring, p)
	}
	return append(ring, walk[len(walk)-1]), nil
}
