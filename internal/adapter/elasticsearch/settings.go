package elasticsearch

// DateFormat is the index date format matching domain.OutputTimeLayout.
const DateFormat = "yyyy-MM-dd'T'HH:mm:ss'Z'"

// textProperties are indexed as full text with an exact-match "raw" keyword.
var textProperties = []string{
	"identifier", "area", "reference", "zone", "headline", "titre",
	"descrip_en", "descrip_fr", "alert_type", "status", "url",
}

// IndexSettings is the body sent when the index is created.
type IndexSettings struct {
	Shards   int
	Replicas int
}

// DefaultIndexSettings is a single shard without replicas.
func DefaultIndexSettings() IndexSettings {
	return IndexSettings{Shards: 1, Replicas: 0}
}

// Body renders the settings and the feature mapping: a geo_shape geometry
// and the feature properties nested under "properties".
func (s IndexSettings) Body() map[string]any {
	props := make(map[string]any, len(textProperties)+2)
	for _, name := range textProperties {
		props[name] = map[string]any{
			"type": "text",
			"fields": map[string]any{
				"raw": map[string]any{"type": "keyword"},
			},
		}
	}
	for _, name := range []string{"effective", "expires"} {
		props[name] = map[string]any{
			"type":   "date",
			"format": DateFormat,
		}
	}

	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   s.Shards,
			"number_of_replicas": s.Replicas,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"geometry":   map[string]any{"type": "geo_shape"},
				"properties": map[string]any{"properties": props},
			},
		},
	}
}
