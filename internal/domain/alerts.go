package domain

import (
	"fmt"
	"strings"
	"time"
)

// areaKeyLength is the number of cleaned polygon characters kept in an AreaKey.
const areaKeyLength = 25

var areaKeyStripper = strings.NewReplacer("-", "", ",", "", " ", "", ".", "")

// AreaKey derives the dedup and pairing key of an area from its raw polygon.
// Polygons sharing the same cleaned 25-character prefix collide on purpose.
func AreaKey(polygon string) string {
	cleaned := areaKeyStripper.Replace(polygon)
	if len(cleaned) > areaKeyLength {
		cleaned = cleaned[:areaKeyLength]
	}
	return "a-" + cleaned
}

// splitPolygon turns a CAP polygon ("lat,lon lat,lon ...") into a flat token list.
func splitPolygon(polygon string) []string {
	return strings.FieldsFunc(polygon, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// EnglishAlert is the English rendition of one area of an alert.
type EnglishAlert struct {
	Coords      []string // CAP order: lat0, lon0, lat1, lon1, ...
	AreaDesc    string
	Headline    string
	Effective   time.Time
	Expires     time.Time
	WarningType string
	Status      string
	AreaKey     string
	Description string
	URL         string
}

// FrenchAlert is the French rendition of one area of an alert. Geometry and
// dates always come from the English side.
type FrenchAlert struct {
	AreaKey     string
	AreaDesc    string
	Headline    string
	Description string
}

// alertSet is an insertion-ordered map where the first write for a key wins.
type alertSet[T any] struct {
	keys  []string
	items map[string]T
}

func newAlertSet[T any]() *alertSet[T] {
	return &alertSet[T]{items: make(map[string]T)}
}

// add stores v under key unless the key is already present.
func (s *alertSet[T]) add(key string, v T) bool {
	if _, ok := s.items[key]; ok {
		return false
	}
	s.keys = append(s.keys, key)
	s.items[key] = v
	return true
}

func (s *alertSet[T]) get(key string) (T, bool) {
	v, ok := s.items[key]
	return v, ok
}

func (s *alertSet[T]) len() int { return len(s.keys) }

// collectAlerts walks every info block of doc and fills the English and
// French sets. Blocks are eligible when they have not expired yet or when the
// document identifier is not among the references recorded so far in this
// pass; the latter holds for any document that does not reference itself.
func collectAlerts(doc *Document, url string, now time.Time) (*alertSet[EnglishAlert], *alertSet[FrenchAlert]) {
	english := newAlertSet[EnglishAlert]()
	french := newAlertSet[FrenchAlert]()
	seenRefs := make(map[string]struct{})
	lastRef := doc.LastRef()

	for _, info := range doc.Infos {
		_, seen := seenRefs[doc.Identifier]
		if !info.Expires.After(now) && seen {
			continue
		}
		seenRefs[lastRef] = struct{}{}

		for _, area := range info.Areas {
			key := AreaKey(area.Polygon)
			if info.French() {
				french.add(key, FrenchAlert{
					AreaKey:     key,
					AreaDesc:    area.Desc,
					Headline:    info.Headline,
					Description: info.Description,
				})
				continue
			}
			english.add(key, EnglishAlert{
				Coords:      splitPolygon(area.Polygon),
				AreaDesc:    area.Desc,
				Headline:    info.Headline,
				Effective:   info.Effective,
				Expires:     info.Expires,
				WarningType: info.WarningType,
				Status:      info.Status,
				AreaKey:     key,
				Description: info.Description,
				URL:         url,
			})
		}
	}
	return english, french
}

// dropExpired returns new sets without the English alerts that expired
// strictly before now, and without their French counterparts. An expired
// English alert with no French counterpart is an ErrUnpaired.
func dropExpired(english *alertSet[EnglishAlert], french *alertSet[FrenchAlert], now time.Time) (*alertSet[EnglishAlert], *alertSet[FrenchAlert], error) {
	expired := make(map[string]struct{})
	liveEnglish := newAlertSet[EnglishAlert]()
	for _, key := range english.keys {
		alert := english.items[key]
		if alert.Expires.Before(now) {
			if _, ok := french.get(key); !ok {
				return nil, nil, fmt.Errorf("%w: expired area %s", ErrUnpaired, key)
			}
			expired[key] = struct{}{}
			continue
		}
		liveEnglish.add(key, alert)
	}

	liveFrench := newAlertSet[FrenchAlert]()
	for _, key := range french.keys {
		if _, gone := expired[key]; gone {
			continue
		}
		liveFrench.add(key, french.items[key])
	}
	return liveEnglish, liveFrench, nil
}
