package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldDefinition(t *testing.T) {
	def := &FieldDefinition{
		Name:        "channel_name",
		Type:        FieldTypeString,
		Description: "The name of the channel",
		Aliases:     []string{"name", "title"},
		Scopes:      []Scope{{SourceStream, StageFiltering}},
	}

	assert.Equal(t, "channel_name", def.Name)
	assert.Equal(t, FieldTypeString, def.Type)
	assert.Contains(t, def.Aliases, "name")
	assert.Contains(t, def.Scopes, Scope{SourceStream, StageFiltering})
}

func TestFieldRegistry_Register(t *testing.T) {
	registry := NewFieldRegistry()

	def := &FieldDefinition{
		Name:   "test_field",
		Type:   FieldTypeString,
		Scopes: []Scope{{SourceStream, StageFiltering}},
	}

	registry.Register(def)

	result, ok := registry.Get("test_field")
	require.True(t, ok)
	assert.Equal(t, "test_field", result.Name)
}

func TestFieldRegistry_Aliases(t *testing.T) {
	registry := NewFieldRegistry()

	def := &FieldDefinition{
		Name:    "channel_name",
		Type:    FieldTypeString,
		Aliases: []string{"name", "title"},
		Scopes:  []Scope{{SourceStream, StageFiltering}},
	}

	registry.Register(def)

	result, ok := registry.Get("channel_name")
	require.True(t, ok)
	assert.Equal(t, "channel_name", result.Name)

	result, ok = registry.Get("name")
	require.True(t, ok)
	assert.Equal(t, "channel_name", result.Name)

	result, ok = registry.Get("title")
	require.True(t, ok)
	assert.Equal(t, "channel_name", result.Name)
}

func TestFieldRegistry_Resolve(t *testing.T) {
	registry := NewFieldRegistry()

	def := &FieldDefinition{
		Name:    "programme_title",
		Type:    FieldTypeString,
		Aliases: []string{"program_title", "prog_title"},
		Scopes:  []Scope{{SourceEPG, StageFiltering}},
	}

	registry.Register(def)

	canonical := registry.Resolve("program_title")
	assert.Equal(t, "programme_title", canonical)

	canonical = registry.Resolve("programme_title")
	assert.Equal(t, "programme_title", canonical)

	canonical = registry.Resolve("unknown_field")
	assert.Equal(t, "unknown_field", canonical)
}

func TestFieldRegistry_ValidateForScope(t *testing.T) {
	registry := NewFieldRegistry()

	registry.Register(&FieldDefinition{
		Name:   "stream_url",
		Type:   FieldTypeString,
		Scopes: []Scope{{SourceStream, StageFiltering}},
	})

	registry.Register(&FieldDefinition{
		Name:   "programme_description",
		Type:   FieldTypeString,
		Scopes: []Scope{{SourceEPG, StageFiltering}},
	})

	registry.Register(&FieldDefinition{
		Name: "source_name",
		Type: FieldTypeString,
		Scopes: []Scope{
			{SourceStream, StageFiltering},
			{SourceEPG, StageFiltering},
		},
	})

	assert.True(t, registry.ValidateForScope("stream_url", Scope{SourceStream, StageFiltering}))
	assert.False(t, registry.ValidateForScope("stream_url", Scope{SourceEPG, StageFiltering}))

	assert.True(t, registry.ValidateForScope("programme_description", Scope{SourceEPG, StageFiltering}))
	assert.False(t, registry.ValidateForScope("programme_description", Scope{SourceStream, StageFiltering}))

	assert.True(t, registry.ValidateForScope("source_name", Scope{SourceStream, StageFiltering}))
	assert.True(t, registry.ValidateForScope("source_name", Scope{SourceEPG, StageFiltering}))

	// Unknown field is always valid (permissive).
	assert.True(t, registry.ValidateForScope("unknown_field", Scope{SourceStream, StageFiltering}))
}

func TestFieldRegistry_ListForScope(t *testing.T) {
	registry := NewFieldRegistry()

	registry.Register(&FieldDefinition{
		Name:   "channel_name",
		Type:   FieldTypeString,
		Scopes: []Scope{{SourceStream, StageFiltering}},
	})

	registry.Register(&FieldDefinition{
		Name:   "stream_url",
		Type:   FieldTypeString,
		Scopes: []Scope{{SourceStream, StageFiltering}},
	})

	registry.Register(&FieldDefinition{
		Name:   "programme_title",
		Type:   FieldTypeString,
		Scopes: []Scope{{SourceEPG, StageFiltering}},
	})

	streamFields := registry.ListForScope(Scope{SourceStream, StageFiltering})
	assert.Len(t, streamFields, 2)

	epgFields := registry.ListForScope(Scope{SourceEPG, StageFiltering})
	assert.Len(t, epgFields, 1)
	assert.Equal(t, "programme_title", epgFields[0].Name)
}

func TestFieldTypes(t *testing.T) {
	tests := []struct {
		fieldType FieldType
		name      string
	}{
		{FieldTypeString, "string"},
		{FieldTypeInteger, "integer"},
		{FieldTypeFloat, "float"},
		{FieldTypeBoolean, "boolean"},
		{FieldTypeDatetime, "datetime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.fieldType.String())
		})
	}
}

func TestScopes(t *testing.T) {
	tests := []struct {
		scope Scope
		want  string
	}{
		{Scope{SourceStream, StageFiltering}, "stream_filtering"},
		{Scope{SourceEPG, StageFiltering}, "epg_filtering"},
		{Scope{SourceStream, StageDataMapping}, "stream_data_mapping"},
		{Scope{SourceEPG, StageDataMapping}, "epg_data_mapping"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.String())
		})
	}
}

func TestParseScope(t *testing.T) {
	scope, ok := ParseScope("stream_filter")
	require.True(t, ok)
	assert.Equal(t, Scope{SourceStream, StageFiltering}, scope)

	scope, ok = ParseScope("epg_mapping")
	require.True(t, ok)
	assert.Equal(t, Scope{SourceEPG, StageDataMapping}, scope)

	_, ok = ParseScope("nonsense")
	assert.False(t, ok)
}

func TestDefaultRegistry_ChannelFields(t *testing.T) {
	registry := DefaultRegistry()

	channelFields := []string{
		"channel_name",
		"tvg_id",
		"tvg_name",
		"tvg_logo",
		"group_title",
		"stream_url",
		"channel_number",
	}

	for _, field := range channelFields {
		t.Run(field, func(t *testing.T) {
			def, ok := registry.Get(field)
			require.True(t, ok, "field %s should exist", field)
			assert.True(t, def.hasScope(Scope{SourceStream, StageFiltering}))
		})
	}
}

func TestDefaultRegistry_EPGFields(t *testing.T) {
	registry := DefaultRegistry()

	epgFields := []string{
		"programme_title",
		"programme_description",
		"programme_start",
		"programme_stop",
		"programme_category",
	}

	for _, field := range epgFields {
		t.Run(field, func(t *testing.T) {
			def, ok := registry.Get(field)
			require.True(t, ok, "field %s should exist", field)
			assert.True(t, def.hasScope(Scope{SourceEPG, StageFiltering}))
		})
	}
}

func TestDefaultRegistry_Aliases(t *testing.T) {
	registry := DefaultRegistry()

	tests := []struct {
		alias     string
		canonical string
	}{
		{"program_title", "programme_title"},
		{"program_description", "programme_description"},
		{"name", "channel_name"},
		{"logo", "tvg_logo"},
		{"group", "group_title"},
	}

	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			resolved := registry.Resolve(tt.alias)
			assert.Equal(t, tt.canonical, resolved)
		})
	}
}

func TestDefaultRegistry_SourceMetadata(t *testing.T) {
	registry := DefaultRegistry()

	metaFields := []string{
		"source_name",
		"source_type",
		"source_url",
	}

	for _, field := range metaFields {
		t.Run(field, func(t *testing.T) {
			def, ok := registry.Get(field)
			require.True(t, ok, "field %s should exist", field)
			assert.True(t, def.hasScope(Scope{SourceStream, StageFiltering}))
			assert.True(t, def.hasScope(Scope{SourceEPG, StageFiltering}))
		})
	}
}

func TestDefaultRegistry_RequestContext(t *testing.T) {
	registry := DefaultRegistry()

	def, ok := registry.Get("preferred_video_codec")
	require.True(t, ok)
	assert.True(t, def.hasScope(Scope{SourceRequest, StageDataMapping}))
	assert.False(t, def.ReadOnly)

	def, ok = registry.Get("user_agent")
	require.True(t, ok)
	assert.True(t, def.ReadOnly)
}

func TestFieldRegistry_NotFound(t *testing.T) {
	registry := NewFieldRegistry()

	_, ok := registry.Get("nonexistent")
	assert.False(t, ok)
}
