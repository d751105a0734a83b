package expression

import "sync"

// FieldType is the data type of a field.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeFloat    FieldType = "float"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDatetime FieldType = "datetime"
)

// String returns the string representation of the field type.
func (t FieldType) String() string {
	return string(t)
}

// FieldDefinition describes one field that expressions can reference.
type FieldDefinition struct {
	// Name is the canonical name of the field.
	Name string

	// Type is the data type of the field.
	Type FieldType

	// Description documents the field for validation-error suggestions
	// and the admin field-listing endpoint.
	Description string

	// Aliases are alternative names that resolve to Name.
	Aliases []string

	// Scopes lists every (SourceKind, StageKind) pair this field may be
	// referenced from.
	Scopes []Scope

	// ReadOnly marks a field that a rule's SET action may not target.
	ReadOnly bool
}

// hasScope reports whether the field is usable in the given scope.
func (d *FieldDefinition) hasScope(scope Scope) bool {
	for _, s := range d.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// FieldRegistry is a lookup table of field definitions, keyed by canonical
// name/alias and indexed by scope.
type FieldRegistry struct {
	mu      sync.RWMutex
	byName  map[string]*FieldDefinition
	aliases map[string]string // alias -> canonical name
	byScope map[Scope][]*FieldDefinition
}

// NewFieldRegistry creates a new, empty field registry.
func NewFieldRegistry() *FieldRegistry {
	return &FieldRegistry{
		byName:  make(map[string]*FieldDefinition),
		aliases: make(map[string]string),
		byScope: make(map[Scope][]*FieldDefinition),
	}
}

// Register adds a field definition to the registry.
func (r *FieldRegistry) Register(def *FieldDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[def.Name] = def

	for _, alias := range def.Aliases {
		r.aliases[alias] = def.Name
	}

	for _, scope := range def.Scopes {
		r.byScope[scope] = append(r.byScope[scope], def)
	}
}

// Get retrieves a field definition by canonical name or alias.
func (r *FieldRegistry) Get(name string) (*FieldDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.byName[name]; ok {
		return def, true
	}
	if canonical, ok := r.aliases[name]; ok {
		if def, ok := r.byName[canonical]; ok {
			return def, true
		}
	}
	return nil, false
}

// Resolve returns the canonical name for a field name or alias. Unknown
// names are returned unchanged.
func (r *FieldRegistry) Resolve(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.byName[name]; ok {
		return name
	}
	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}
	return name
}

// ValidateForScope reports whether a field name is usable in the given
// scope. Unknown fields are considered valid (permissive mode), since
// rules predate some field registrations during rolling upgrades.
func (r *FieldRegistry) ValidateForScope(name string, scope Scope) bool {
	def, ok := r.Get(name)
	if !ok {
		return true
	}
	return def.hasScope(scope)
}

// ListForScope returns every field definition usable in the given scope.
func (r *FieldRegistry) ListForScope(scope Scope) []*FieldDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byScope[scope]
}

// All returns every registered field definition.
func (r *FieldRegistry) All() []*FieldDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*FieldDefinition, 0, len(r.byName))
	for _, def := range r.byName {
		result = append(result, def)
	}
	return result
}

var (
	defaultRegistry     *FieldRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide field registry, built with the
// standard stream/EPG/source-metadata/request field set on first use.
func DefaultRegistry() *FieldRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewFieldRegistry()
		for _, def := range channelFieldDefinitions() {
			defaultRegistry.Register(def)
		}
		for _, def := range programmeFieldDefinitions() {
			defaultRegistry.Register(def)
		}
		for _, def := range sourceMetadataFieldDefinitions() {
			defaultRegistry.Register(def)
		}
		for _, def := range requestContextFieldDefinitions() {
			defaultRegistry.Register(def)
		}
	})
	return defaultRegistry
}

// channelFieldDefinitions lists the fields a Channel record exposes to
// stream-scoped filter and data-mapping expressions.
func channelFieldDefinitions() []*FieldDefinition {
	streamScopes := defaultScopesForSource(SourceStream)

	return []*FieldDefinition{
		{
			Name:        "channel_name",
			Type:        FieldTypeString,
			Description: "The display name of the channel",
			Aliases:     []string{"name"},
			Scopes:      streamScopes,
		},
		{
			Name:        "tvg_id",
			Type:        FieldTypeString,
			Description: "The EPG identifier for the channel",
			Aliases:     []string{"epg_id"},
			Scopes:      streamScopes,
		},
		{
			Name:        "tvg_name",
			Type:        FieldTypeString,
			Description: "The TVG name attribute",
			Scopes:      streamScopes,
		},
		{
			Name:        "tvg_logo",
			Type:        FieldTypeString,
			Description: "URL to the channel logo",
			Aliases:     []string{"logo"},
			Scopes:      streamScopes,
		},
		{
			Name:        "group_title",
			Type:        FieldTypeString,
			Description: "The group/category for the channel",
			Aliases:     []string{"group", "category"},
			Scopes:      streamScopes,
		},
		{
			Name:        "stream_url",
			Type:        FieldTypeString,
			Description: "The URL of the stream",
			Aliases:     []string{"url"},
			Scopes:      streamScopes,
			ReadOnly:    true,
		},
		{
			Name:        "channel_number",
			Type:        FieldTypeInteger,
			Description: "The assigned channel number",
			Aliases:     []string{"number", "chno"},
			Scopes:      streamScopes,
		},
		{
			Name:        "tvg_shift",
			Type:        FieldTypeFloat,
			Description: "EPG time shift in hours",
			Scopes:      []Scope{{SourceStream, StageDataMapping}},
		},
		{
			Name:        "tvg_language",
			Type:        FieldTypeString,
			Description: "Language of the channel",
			Aliases:     []string{"language", "lang"},
			Scopes:      streamScopes,
		},
		{
			Name:        "tvg_country",
			Type:        FieldTypeString,
			Description: "Country of the channel",
			Aliases:     []string{"country"},
			Scopes:      streamScopes,
		},
		{
			Name:        "radio",
			Type:        FieldTypeBoolean,
			Description: "Whether the stream is a radio station",
			Scopes:      []Scope{{SourceStream, StageFiltering}},
		},
		{
			Name:        "is_adult",
			Type:        FieldTypeBoolean,
			Description: "Whether the stream contains adult content",
			Aliases:     []string{"adult"},
			Scopes:      []Scope{{SourceStream, StageFiltering}},
		},
	}
}

// programmeFieldDefinitions lists the fields an EpgProgram record exposes
// to EPG-scoped filter and data-mapping expressions.
func programmeFieldDefinitions() []*FieldDefinition {
	epgScopes := defaultScopesForSource(SourceEPG)
	epgFilterOnly := []Scope{{SourceEPG, StageFiltering}}

	return []*FieldDefinition{
		{
			Name:        "programme_title",
			Type:        FieldTypeString,
			Description: "The title of the programme",
			Aliases:     []string{"program_title", "title"},
			Scopes:      epgScopes,
		},
		{
			Name:        "programme_description",
			Type:        FieldTypeString,
			Description: "The description of the programme",
			Aliases:     []string{"program_description", "description", "desc"},
			Scopes:      epgScopes,
		},
		{
			Name:        "programme_start",
			Type:        FieldTypeDatetime,
			Description: "The start time of the programme",
			Aliases:     []string{"program_start", "start", "start_time"},
			Scopes:      epgFilterOnly,
			ReadOnly:    true,
		},
		{
			Name:        "programme_stop",
			Type:        FieldTypeDatetime,
			Description: "The end time of the programme",
			Aliases:     []string{"program_stop", "stop", "end_time"},
			Scopes:      epgFilterOnly,
			ReadOnly:    true,
		},
		{
			Name:        "programme_category",
			Type:        FieldTypeString,
			Description: "The category of the programme",
			Aliases:     []string{"program_category", "genre"},
			Scopes:      epgScopes,
		},
		{
			Name:        "programme_episode",
			Type:        FieldTypeString,
			Description: "Episode number information",
			Aliases:     []string{"program_episode", "episode"},
			Scopes:      epgFilterOnly,
		},
		{
			Name:        "programme_season",
			Type:        FieldTypeString,
			Description: "Season number information",
			Aliases:     []string{"program_season", "season"},
			Scopes:      epgFilterOnly,
		},
		{
			Name:        "programme_icon",
			Type:        FieldTypeString,
			Description: "URL to the programme icon/poster",
			Aliases:     []string{"program_icon", "poster"},
			Scopes:      []Scope{{SourceEPG, StageDataMapping}},
		},
	}
}

// sourceMetadataFieldDefinitions lists read-only fields describing which
// upstream source produced a record — valid in filter expressions for
// either source kind, never SET-able by a data-mapping rule.
func sourceMetadataFieldDefinitions() []*FieldDefinition {
	scopes := []Scope{{SourceStream, StageFiltering}, {SourceEPG, StageFiltering}}

	return []*FieldDefinition{
		{
			Name:        "source_name",
			Type:        FieldTypeString,
			Description: "The name of the source that provided this data",
			Scopes:      scopes,
			ReadOnly:    true,
		},
		{
			Name:        "source_type",
			Type:        FieldTypeString,
			Description: "The type of source (m3u, xtream, xmltv)",
			Scopes:      scopes,
			ReadOnly:    true,
		},
		{
			Name:        "source_url",
			Type:        FieldTypeString,
			Description: "The URL of the source",
			Scopes:      scopes,
			ReadOnly:    true,
		},
	}
}

// requestContextFieldDefinitions lists HTTP-request-derived fields that a
// data-mapping rule's @dynamic() action can read or a SET action can
// populate (preferred codec/format hints derived from request headers).
// These have no ingested record behind them, so they only ever pair with
// SourceRequest + StageDataMapping.
func requestContextFieldDefinitions() []*FieldDefinition {
	scope := []Scope{{SourceRequest, StageDataMapping}}

	readOnly := []*FieldDefinition{
		{Name: "user_agent", Type: FieldTypeString, Description: "The User-Agent header from the HTTP request", Aliases: []string{"ua"}},
		{Name: "client_ip", Type: FieldTypeString, Description: "The client IP address (considers X-Forwarded-For)", Aliases: []string{"ip", "remote_addr"}},
		{Name: "request_path", Type: FieldTypeString, Description: "The URL path of the request", Aliases: []string{"path"}},
		{Name: "request_url", Type: FieldTypeString, Description: "The full URL of the request", Aliases: []string{"url"}},
		{Name: "query_params", Type: FieldTypeString, Description: "The query string of the request", Aliases: []string{"query"}},
		{Name: "x_forwarded_for", Type: FieldTypeString, Description: "The X-Forwarded-For header value"},
		{Name: "x_real_ip", Type: FieldTypeString, Description: "The X-Real-IP header value"},
		{Name: "accept", Type: FieldTypeString, Description: "The Accept header value"},
		{Name: "accept_language", Type: FieldTypeString, Description: "The Accept-Language header value"},
		{Name: "host", Type: FieldTypeString, Description: "The Host header value"},
		{Name: "referer", Type: FieldTypeString, Description: "The Referer header value", Aliases: []string{"referrer"}},
		{Name: "x_video_codec", Type: FieldTypeString, Description: "The X-Video-Codec header value (via @dynamic())"},
		{Name: "x_audio_codec", Type: FieldTypeString, Description: "The X-Audio-Codec header value (via @dynamic())"},
		{Name: "x_container", Type: FieldTypeString, Description: "The X-Container header value (via @dynamic())"},
	}
	for _, def := range readOnly {
		def.Scopes = scope
		def.ReadOnly = true
	}

	settable := []*FieldDefinition{
		{Name: "accepted_video_codecs", Type: FieldTypeString, Description: "List of video codecs the client accepts (JSON array)"},
		{Name: "accepted_audio_codecs", Type: FieldTypeString, Description: "List of audio codecs the client accepts (JSON array)"},
		{Name: "preferred_video_codec", Type: FieldTypeString, Description: "Client's preferred video codec"},
		{Name: "preferred_audio_codec", Type: FieldTypeString, Description: "Client's preferred audio codec"},
		{Name: "preferred_format", Type: FieldTypeString, Description: "Client's preferred container format (hls, hls-fmp4, dash, mpegts)"},
		{Name: "supports_fmp4", Type: FieldTypeBoolean, Description: "Whether the client supports fMP4 segments"},
		{Name: "supports_mpegts", Type: FieldTypeBoolean, Description: "Whether the client supports MPEG-TS"},
	}
	for _, def := range settable {
		def.Scopes = scope
	}

	return append(readOnly, settable...)
}
