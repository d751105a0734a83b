package expression

// SourceKind is the kind of record a field or expression describes.
type SourceKind string

const (
	// SourceStream is a channel/stream record.
	SourceStream SourceKind = "stream"
	// SourceEPG is an EPG programme record.
	SourceEPG SourceKind = "epg"
	// SourceRequest is the HTTP request context available to @dynamic()
	// field extraction in data-mapping actions; it has no ingested record
	// behind it, so it only ever pairs with StageDataMapping.
	SourceRequest SourceKind = "request"
)

// StageKind is the pipeline stage an expression is evaluated for.
type StageKind string

const (
	StageFiltering   StageKind = "filtering"
	StageDataMapping StageKind = "data_mapping"
	StageNumbering   StageKind = "numbering"
	StageGeneration  StageKind = "generation"
)

// Scope is the field registry's lookup key: a (SourceKind, StageKind) pair.
// A FieldDefinition lists every Scope it may be referenced from; a Validator
// call site names the Scopes its expression is about to run under.
type Scope struct {
	Source SourceKind
	Stage  StageKind
}

// String renders the scope as "<source>_<stage>".
func (s Scope) String() string {
	return string(s.Source) + "_" + string(s.Stage)
}

// ParseScope parses a scope string, accepting both the canonical
// "<source>_<stage>" form and the shorthand aliases admin tooling has
// historically used ("stream", "epg" for filtering scopes).
func ParseScope(s string) (Scope, bool) {
	switch s {
	case "stream_filter", "stream_filtering", "stream":
		return Scope{SourceStream, StageFiltering}, true
	case "epg_filter", "epg_filtering", "epg":
		return Scope{SourceEPG, StageFiltering}, true
	case "stream_mapping", "stream_data_mapping", "stream_datamapping":
		return Scope{SourceStream, StageDataMapping}, true
	case "epg_mapping", "epg_data_mapping", "epg_datamapping":
		return Scope{SourceEPG, StageDataMapping}, true
	default:
		return Scope{}, false
	}
}

// IsFiltering reports whether this scope is a filter-rule scope.
func (s Scope) IsFiltering() bool { return s.Stage == StageFiltering }

// IsDataMapping reports whether this scope is a data-mapping-rule scope.
func (s Scope) IsDataMapping() bool { return s.Stage == StageDataMapping }

// IsStream reports whether this scope describes stream/channel records.
func (s Scope) IsStream() bool { return s.Source == SourceStream }

// IsEPG reports whether this scope describes EPG/programme records.
func (s Scope) IsEPG() bool { return s.Source == SourceEPG }

// defaultScopesForSource returns the two scopes ("filtering" then
// "data_mapping") a field registered under a given source normally spans,
// used as shorthand when building the default registry.
func defaultScopesForSource(src SourceKind) []Scope {
	return []Scope{{src, StageFiltering}, {src, StageDataMapping}}
}
