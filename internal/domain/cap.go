package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// CAPNamespace is the namespace URI of every CAP 1.2 element we read.
const CAPNamespace = "urn:oasis:names:tc:emergency:cap:1.2"

// FrenchLanguage is the info language treated as the French rendition.
// Every other language is treated as English.
const FrenchLanguage = "fr-CA"

// ParameterRule locates one <parameter> value inside an <info> block.
//
// When Name is set and a parameter with that valueName exists, its value is
// used. Otherwise the parameter at Position is read: 1-based from the start,
// or negative from the end (-1 is the last parameter). Position-only rules
// reproduce the MSC CAP profile layout and are not validated against it.
type ParameterRule struct {
	Name     string
	Position int
}

// Rules selects the parameters that carry the alert type and the status text.
type Rules struct {
	WarningType ParameterRule
	Status      ParameterRule
}

// DefaultRules is the positional layout of the MSC CAP profile:
// parameter[1] for the alert type and parameter[last()-4] for the status.
var DefaultRules = Rules{
	WarningType: ParameterRule{Position: 1},
	Status:      ParameterRule{Position: -5},
}

// Document is one parsed CAP message.
type Document struct {
	Identifier string
	References string
	Infos      []Info
}

// LastRef returns the last entry of the comma-separated references list.
func (d *Document) LastRef() string {
	refs := strings.Split(d.References, ",")
	return refs[len(refs)-1]
}

// Info is one <info> block: a single language rendition of the alert.
type Info struct {
	Language    string
	Headline    string
	Description string
	Effective   time.Time // zero for French blocks
	Expires     time.Time
	WarningType string // empty for French blocks
	Status      string
	Areas       []Area
}

// French reports whether the block is the French rendition.
func (i Info) French() bool {
	return i.Language == FrenchLanguage
}

// Area is one <area> element.
type Area struct {
	Desc    string
	Polygon string
}

// ParseDocument parses raw CAP XML. A missing identifier, references or
// expires element, or an English block without effective, is an ErrParse.
func ParseDocument(data []byte, rules Rules) (*Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	root := tree.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}

	identifier, ok := Lookup(root, "identifier", "")
	if !ok {
		return nil, fmt.Errorf("%w: missing identifier", ErrParse)
	}
	references, ok := Lookup(root, "references", "")
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing references", ErrParse, identifier)
	}

	doc := &Document{Identifier: identifier, References: references}
	for _, el := range descendants(root, "info") {
		info, err := parseInfo(el, rules)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", identifier, err)
		}
		doc.Infos = append(doc.Infos, info)
	}
	return doc, nil
}

func parseInfo(el *etree.Element, rules Rules) (Info, error) {
	rawExpires, ok := Lookup(el, "expires", "")
	if !ok {
		return Info{}, fmt.Errorf("%w: info without expires", ErrParse)
	}
	expires, err := ParseCAPTime(rawExpires)
	if err != nil {
		return Info{}, err
	}

	language, _ := Lookup(el, "language", "")
	headline, _ := Lookup(el, "headline", "")
	description, _ := Lookup(el, "description", "")

	info := Info{
		Language:    language,
		Headline:    headline,
		Description: strings.TrimSpace(strings.ReplaceAll(description, "\n", " ")),
		Expires:     expires,
		Status:      rules.Status.resolve(el),
	}

	if !info.French() {
		rawEffective, ok := Lookup(el, "effective", "")
		if !ok {
			return Info{}, fmt.Errorf("%w: english info without effective", ErrParse)
		}
		if info.Effective, err = ParseCAPTime(rawEffective); err != nil {
			return Info{}, err
		}
		info.WarningType = rules.WarningType.resolve(el)
	}

	for _, a := range descendants(el, "area") {
		desc, _ := Lookup(a, "areaDesc", "")
		polygon, _ := Lookup(a, "polygon", "")
		info.Areas = append(info.Areas, Area{Desc: desc, Polygon: polygon})
	}
	return info, nil
}

func (r ParameterRule) resolve(info *etree.Element) string {
	if r.Name != "" {
		for _, p := range children(info, "parameter") {
			if name, _ := Lookup(p, "valueName", ""); name == r.Name {
				v, _ := Lookup(p, "value", "")
				return v
			}
		}
	}
	if r.Position == 0 {
		return ""
	}
	v, _ := Lookup(info, "parameter["+strconv.Itoa(r.Position)+"]/value", "")
	return v
}

// Lookup resolves a slash-separated path of CAP element names below node.
// A step may carry a positional index: [n] is 1-based, [-n] counts from the
// last sibling. With attr set it returns that attribute of the resolved
// element; otherwise it returns the element text when non-empty. A missing
// node, attribute or text reports false.
func Lookup(node *etree.Element, path, attr string) (string, bool) {
	el := find(node, path)
	if el == nil {
		return "", false
	}
	if attr != "" {
		a := el.SelectAttr(attr)
		if a == nil {
			return "", false
		}
		return a.Value, true
	}
	text := el.Text()
	if text == "" {
		return "", false
	}
	return text, true
}

func find(node *etree.Element, path string) *etree.Element {
	if node == nil {
		return nil
	}
	current := []*etree.Element{node}
	for _, raw := range strings.Split(path, "/") {
		name, index, ok := parseStep(raw)
		if !ok {
			return nil
		}
		var next []*etree.Element
		for _, parent := range current {
			matches := children(parent, name)
			switch {
			case index == 0:
				next = append(next, matches...)
			case index > 0 && index <= len(matches):
				next = append(next, matches[index-1])
			case index < 0 && -index <= len(matches):
				next = append(next, matches[len(matches)+index])
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current[0]
}

// parseStep splits "parameter[-5]" into ("parameter", -5).
func parseStep(step string) (string, int, bool) {
	open := strings.IndexByte(step, '[')
	if open < 0 {
		return step, 0, step != ""
	}
	if !strings.HasSuffix(step, "]") || open == 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(step[open+1 : len(step)-1])
	if err != nil || n == 0 {
		return "", 0, false
	}
	return step[:open], n, true
}

func children(parent *etree.Element, name string) []*etree.Element {
	var out []*etree.Element
	for _, c := range parent.ChildElements() {
		if c.Tag == name && c.NamespaceURI() == CAPNamespace {
			out = append(out, c)
		}
	}
	return out
}

// descendants returns every CAP element named name below root in document order.
func descendants(root *etree.Element, name string) []*etree.Element {
	var out []*etree.Element
	for _, c := range root.ChildElements() {
		if c.Tag == name && c.NamespaceURI() == CAPNamespace {
			out = append(out, c)
		}
		out = append(out, descendants(c, name)...)
	}
	return out
}
