package filter

import "regexp"

// PredicateSpec is a named include/exclude pattern pair. A release matches
// the predicate when every include pattern matches its text and no exclude
// pattern does. Patterns are case-insensitive, unanchored.
type PredicateSpec struct {
	Name    string
	Include []*regexp.Regexp
	Exclude []*regexp.Regexp
}

// Registry maps predicate names to their specs. It is built once at startup
// and never mutated afterwards.
type Registry map[string]*PredicateSpec

func compilePredicate(name string, include, exclude []string) *PredicateSpec {
	p := &PredicateSpec{Name: name}
	for _, pat := range include {
		p.Include = append(p.Include, regexp.MustCompile("(?i)"+pat))
	}
	for _, pat := range exclude {
		p.Exclude = append(p.Exclude, regexp.MustCompile("(?i)"+pat))
	}
	return p
}

// BuiltinRegistry returns the built-in predicate table.
func BuiltinRegistry() Registry {
	specs := []*PredicateSpec{
		// Blu-ray disc sources
		compilePredicate("BLU", []string{`Blu-?Ray.+VC-?1|Blu-?Ray.+AVC|UHD.+blu-?ray.+HEVC`}, nil),
		compilePredicate("4K", []string{`4k|2160p|x2160`}, nil),
		compilePredicate("1080P", []string{`1080[pi]|x1080`}, nil),
		// Chinese subtitle/dub markers
		compilePredicate("CN", []string{`特效|[中国國繁简](/|\s|\\|\|)?[繁简英粤]|[英简繁](/|\s|\\|\|)?[中繁简]|繁體|简体|[中国國][字配]|国语|國語|中文`}, nil),
		compilePredicate("H265", []string{`[Hx].?265`}, nil),
		compilePredicate("H264", []string{`[Hx].?264`}, nil),
		compilePredicate("DOLBY", []string{`DOLBY|DOVI|\s+DV$|\s+DV\s+`}, nil),
		compilePredicate("HDR", []string{`\s+HDR\s+|HDR10|HDR10\+`}, nil),
		compilePredicate("REMUX", []string{`REMUX`}, nil),
	}
	reg := make(Registry, len(specs))
	for _, p := range specs {
		reg[p.Name] = p
	}
	return reg
}
