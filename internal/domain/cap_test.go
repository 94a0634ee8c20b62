package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentifier = "urn:oid:2.49.0.1.124.1234567890.2030"

type testInfo struct {
	language  string
	headline  string
	effective string
	expires   string
	params    []string
	areas     []Area
}

// capXML renders a minimal CAP 1.2 document.
func capXML(identifier, references string, infos ...testInfo) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">`)
	if identifier != "" {
		fmt.Fprintf(&b, "<identifier>%s</identifier>", identifier)
	}
	if references != "" {
		fmt.Fprintf(&b, "<references>%s</references>", references)
	}
	for _, in := range infos {
		b.WriteString("<info>")
		fmt.Fprintf(&b, "<language>%s</language>", in.language)
		if in.effective != "" {
			fmt.Fprintf(&b, "<effective>%s</effective>", in.effective)
		}
		if in.expires != "" {
			fmt.Fprintf(&b, "<expires>%s</expires>", in.expires)
		}
		fmt.Fprintf(&b, "<headline>%s</headline>", in.headline)
		fmt.Fprintf(&b, "<description>%s description\nsecond line </description>", in.headline)
		for i, v := range in.params {
			fmt.Fprintf(&b, "<parameter><valueName>param-%d</valueName><value>%s</value></parameter>", i+1, v)
		}
		for _, a := range in.areas {
			fmt.Fprintf(&b, "<area><areaDesc>%s</areaDesc><polygon>%s</polygon></area>", a.Desc, a.Polygon)
		}
		b.WriteString("</info>")
	}
	b.WriteString("</alert>")
	return []byte(b.String())
}

func parseTree(t *testing.T, xml string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))
	return doc.Root()
}

func TestLookup(t *testing.T) {
	root := parseTree(t, `<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2" xmlns:x="urn:other">
		<identifier>abc</identifier>
		<empty></empty>
		<x:identifier>foreign</x:identifier>
		<info>
			<parameter><value>one</value></parameter>
			<parameter><value>two</value></parameter>
			<parameter><value>three</value></parameter>
			<resource uri="http://example.com/a.png"><resourceDesc>image</resourceDesc></resource>
		</info>
	</alert>`)

	tests := []struct {
		name  string
		path  string
		attr  string
		want  string
		found bool
	}{
		{"element text", "identifier", "", "abc", true},
		{"empty text is absent", "empty", "", "", false},
		{"missing element", "sender", "", "", false},
		{"nested path", "info/resource/resourceDesc", "", "image", true},
		{"attribute", "info/resource", "uri", "http://example.com/a.png", true},
		{"missing attribute", "info/resource", "mimeType", "", false},
		{"attribute on missing element", "info/area", "uri", "", false},
		{"first position", "info/parameter[1]/value", "", "one", true},
		{"last position", "info/parameter[-1]/value", "", "three", true},
		{"from the end", "info/parameter[-3]/value", "", "one", true},
		{"position out of range", "info/parameter[4]/value", "", "", false},
		{"negative out of range", "info/parameter[-4]/value", "", "", false},
		{"malformed step", "info/parameter[x]/value", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(root, tt.path, tt.attr)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookup_IgnoresOtherNamespaces(t *testing.T) {
	root := parseTree(t, `<alert xmlns="urn:other"><identifier>abc</identifier></alert>`)
	_, ok := Lookup(root, "identifier", "")
	assert.False(t, ok)
}

func TestLookup_NilNode(t *testing.T) {
	_, ok := Lookup(nil, "identifier", "")
	assert.False(t, ok)
}

func TestParseDocument_Fixture(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "cap_en_fr.xml"))
	require.NoError(t, err)

	doc, err := ParseDocument(data, DefaultRules)
	require.NoError(t, err)

	assert.Equal(t, testIdentifier, doc.Identifier)
	assert.Equal(t, "2030-06-01T10:00:00-00:00", doc.LastRef())
	require.Len(t, doc.Infos, 2)

	en := doc.Infos[0]
	assert.False(t, en.French())
	assert.Equal(t, "severe thunderstorm warning in effect", en.Headline)
	assert.Equal(t, "Conditions are favourable for the development of severe thunderstorms. Large hail and damaging winds are possible.", en.Description)
	assert.Equal(t, time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC), en.Effective)
	assert.Equal(t, time.Date(2030, 6, 2, 0, 0, 0, 0, time.UTC), en.Expires)
	assert.Equal(t, "warning", en.WarningType)
	assert.Equal(t, "active", en.Status)
	require.Len(t, en.Areas, 2)
	assert.Equal(t, "Gatineau", en.Areas[1].Desc)

	fr := doc.Infos[1]
	assert.True(t, fr.French())
	assert.True(t, fr.Effective.IsZero())
	assert.Empty(t, fr.WarningType)
	assert.Equal(t, "active", fr.Status)
}

func TestParseDocument_NamedParameters(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "cap_en_fr.xml"))
	require.NoError(t, err)

	rules := Rules{
		WarningType: ParameterRule{Name: "layer:EC-MSC-SMC:1.0:Designation_Code", Position: 1},
		Status:      ParameterRule{Name: "layer:EC-MSC-SMC:1.0:No_Such_Parameter", Position: -5},
	}
	doc, err := ParseDocument(data, rules)
	require.NoError(t, err)

	assert.Equal(t, "WT", doc.Infos[0].WarningType)
	assert.Equal(t, "active", doc.Infos[0].Status, "falls back to position when the name is absent")
}

func TestParseDocument_Errors(t *testing.T) {
	info := testInfo{
		language:  "en-CA",
		effective: "2030-06-01T12:00:00-00:00",
		expires:   "2030-06-02T00:00:00-00:00",
	}
	noExpires := info
	noExpires.expires = ""
	noEffective := info
	noEffective.effective = ""
	badExpires := info
	badExpires.expires = "2030-06"

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"malformed xml", []byte("<alert><<</alert>"), ErrParse},
		{"no root element", []byte("just text"), ErrParse},
		{"empty input", []byte(""), ErrParse},
		{"missing identifier", capXML("", "a,b,c", info), ErrParse},
		{"missing references", capXML(testIdentifier, "", info), ErrParse},
		{"missing expires", capXML(testIdentifier, "a,b,c", noExpires), ErrParse},
		{"english without effective", capXML(testIdentifier, "a,b,c", noEffective), ErrParse},
		{"bad expires", capXML(testIdentifier, "a,b,c", badExpires), ErrDateFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument(tt.data, DefaultRules)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseDocument_FrenchWithoutEffective(t *testing.T) {
	data := capXML(testIdentifier, "a,b,c", testInfo{
		language: FrenchLanguage,
		expires:  "2030-06-02T00:00:00-00:00",
	})
	doc, err := ParseDocument(data, DefaultRules)
	require.NoError(t, err)
	require.Len(t, doc.Infos, 1)
	assert.True(t, doc.Infos[0].Effective.IsZero())
}

func TestParseDocument_MissingParameterIsEmpty(t *testing.T) {
	data := capXML(testIdentifier, "a,b,c", testInfo{
		language:  "en-CA",
		effective: "2030-06-01T12:00:00-00:00",
		expires:   "2030-06-02T00:00:00-00:00",
		params:    []string{"warning"},
	})
	doc, err := ParseDocument(data, DefaultRules)
	require.NoError(t, err)
	assert.Equal(t, "warning", doc.Infos[0].WarningType)
	assert.Empty(t, doc.Infos[0].Status, "fewer than five parameters leaves the status empty")
}

func TestDocument_LastRef(t *testing.T) {
	assert.Equal(t, "c", (&Document{References: "a,b,c"}).LastRef())
	assert.Equal(t, "only", (&Document{References: "only"}).LastRef())
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		step  string
		name  string
		index int
		ok    bool
	}{
		{"info", "info", 0, true},
		{"parameter[1]", "parameter", 1, true},
		{"parameter[-5]", "parameter", -5, true},
		{"parameter[0]", "", 0, false},
		{"parameter[", "", 0, false},
		{"[1]", "", 0, false},
		{"", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			name, index, ok := parseStep(tt.step)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.name, name)
				assert.Equal(t, tt.index, index)
			}
		})
	}
}
