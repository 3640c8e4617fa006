// Package filter classifies managed class names for heap reports. It tells
// runtime and engine classes apart from the game's own code so histograms
// can focus on the latter.
package filter

import (
	"strings"
	"sync"
)

// ClassCategory represents the category of a class.
type ClassCategory int

const (
	// CategoryUnknown indicates an empty or unparsable name.
	CategoryUnknown ClassCategory = iota
	// CategoryPrimitive indicates primitive value types and their arrays.
	CategoryPrimitive
	// CategoryCorlib indicates base class library types (System.*, Mono.*).
	CategoryCorlib
	// CategoryEngine indicates engine types (UnityEngine.*, Unity.*).
	CategoryEngine
	// CategoryThirdParty indicates well-known plugin libraries.
	CategoryThirdParty
	// CategoryApplication indicates everything else: the game's own code.
	CategoryApplication
	// CategoryBusiness indicates classes under a configured app prefix.
	CategoryBusiness
)

// String returns the string representation of the category.
func (c ClassCategory) String() string {
	switch c {
	case CategoryPrimitive:
		return "primitive"
	case CategoryCorlib:
		return "corlib"
	case CategoryEngine:
		return "engine"
	case CategoryThirdParty:
		return "thirdparty"
	case CategoryApplication:
		return "application"
	case CategoryBusiness:
		return "business"
	default:
		return "unknown"
	}
}

// IsSystem reports whether the category is runtime or engine plumbing.
func (c ClassCategory) IsSystem() bool {
	return c == CategoryPrimitive || c == CategoryCorlib || c == CategoryEngine
}

var primitives = []string{
	"System.Boolean", "System.Byte", "System.SByte", "System.Char",
	"System.Int16", "System.UInt16", "System.Int32", "System.UInt32",
	"System.Int64", "System.UInt64", "System.Single", "System.Double",
	"System.IntPtr", "System.UIntPtr", "System.Decimal",
}

var corlibPrefixes = []string{"System.", "Mono.", "Microsoft.", "Internal.", "<PrivateImplementationDetails>"}

var enginePrefixes = []string{"UnityEngine.", "Unity.", "UnityEditor.", "TMPro."}

var thirdPartyPrefixes = []string{
	"Newtonsoft.", "DG.Tweening.", "Google.Protobuf.", "Cysharp.", "Spine.",
	"Cinemachine.", "FMOD.", "ProtoBuf.", "LitJson.", "XLua.", "ILRuntime.",
}

// ClassFilter classifies class names. It is safe for concurrent use.
type ClassFilter struct {
	mu            sync.RWMutex
	primitives    map[string]bool
	appPrefixes   []string
	categoryCache map[string]ClassCategory
	maxCacheSize  int
}

// NewClassFilter creates a filter. Classes under any of appPrefixes are
// classified as CategoryBusiness.
func NewClassFilter(appPrefixes ...string) *ClassFilter {
	f := &ClassFilter{
		primitives:    make(map[string]bool, len(primitives)),
		categoryCache: make(map[string]ClassCategory),
		maxCacheSize:  10000,
	}
	for _, p := range primitives {
		f.primitives[p] = true
	}
	f.AddBusinessPrefixes(appPrefixes)
	return f
}

// Classify returns the category of a class. Array classes ("X[]", "X[][]")
// take the category of their element class, except primitive arrays.
func (f *ClassFilter) Classify(className string) ClassCategory {
	f.mu.RLock()
	if cat, ok := f.categoryCache[className]; ok {
		f.mu.RUnlock()
		return cat
	}
	f.mu.RUnlock()

	cat := f.classifyUncached(className)

	f.mu.Lock()
	if len(f.categoryCache) >= f.maxCacheSize {
		f.categoryCache = make(map[string]ClassCategory)
	}
	f.categoryCache[className] = cat
	f.mu.Unlock()
	return cat
}

func (f *ClassFilter) classifyUncached(className string) ClassCategory {
	name := className
	for {
		elem, ok := strings.CutSuffix(name, "[]")
		if !ok {
			break
		}
		name = elem
	}
	// generic instantiations classify by their definition
	if i := strings.IndexAny(name, "<`"); i > 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(className, "<unknown>") {
		return CategoryUnknown
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.primitives[name] {
		return CategoryPrimitive
	}
	if hasAnyPrefix(name, f.appPrefixes) {
		return CategoryBusiness
	}
	if hasAnyPrefix(name, corlibPrefixes) {
		return CategoryCorlib
	}
	if hasAnyPrefix(name, enginePrefixes) {
		return CategoryEngine
	}
	if hasAnyPrefix(name, thirdPartyPrefixes) {
		return CategoryThirdParty
	}
	return CategoryApplication
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// IsPrimitive returns true for primitive value types and their arrays.
func (f *ClassFilter) IsPrimitive(className string) bool {
	return f.Classify(className) == CategoryPrimitive
}

// IsSystem returns true for primitive, corlib and engine classes.
func (f *ClassFilter) IsSystem(className string) bool {
	return f.Classify(className).IsSystem()
}

// AddBusinessPrefix adds an app namespace prefix such as "Game.".
func (f *ClassFilter) AddBusinessPrefix(prefix string) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.appPrefixes {
		if p == prefix {
			return
		}
	}
	f.appPrefixes = append(f.appPrefixes, prefix)
	f.categoryCache = make(map[string]ClassCategory)
}

// AddBusinessPrefixes adds several app namespace prefixes.
func (f *ClassFilter) AddBusinessPrefixes(prefixes []string) {
	for _, p := range prefixes {
		f.AddBusinessPrefix(p)
	}
}

// BusinessPrefixes returns the configured app prefixes.
func (f *ClassFilter) BusinessPrefixes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.appPrefixes...)
}

// ClearCache clears the classification cache.
func (f *ClassFilter) ClearCache() {
	f.mu.Lock()
	f.categoryCache = make(map[string]ClassCategory)
	f.mu.Unlock()
}

// CacheStats returns cache statistics.
func (f *ClassFilter) CacheStats() (size int, maxSize int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.categoryCache), f.maxCacheSize
}

// DefaultFilter is the default global filter instance.
var DefaultFilter = NewClassFilter()

// Classify classifies a class using the default filter.
func Classify(className string) ClassCategory {
	return DefaultFilter.Classify(className)
}

// IsSystem checks a class using the default filter.
func IsSystem(className string) bool {
	return DefaultFilter.IsSystem(className)
}
