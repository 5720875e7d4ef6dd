// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/isol178/agent-omoikane/internal/errors"
	"github.com/isol178/agent-omoikane/internal/model"
)

func sampleTools() []model.ToolDefinition {
	return []model.ToolDefinition{
		{
			Name:        "add",
			Description: "Add two numbers",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"a": map[string]interface{}{"type": "number"},
					"b": map[string]interface{}{"type": "number"},
				},
				"required": []interface{}{"a", "b"},
			},
		},
		{
			Name:        "now",
			Description: "Current time",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
	}
}

func TestFormatToolsIsDeterministic(t *testing.T) {
	for _, profile := range []Profile{ProfileAnthropic, ProfileOpenAI} {
		first, err := FormatTools(sampleTools(), profile)
		if err != nil {
			t.Fatalf("%s: FormatTools failed: %v", profile, err)
		}
		second, err := FormatTools(sampleTools(), profile)
		if err != nil {
			t.Fatalf("%s: FormatTools failed: %v", profile, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s: formatting the same catalog twice gave different results", profile)
		}
		if first.Len() != 2 {
			t.Errorf("%s: expected 2 tools, got %d", profile, first.Len())
		}
	}
}

func TestFormatToolsProfileIsolation(t *testing.T) {
	a, err := FormatTools(sampleTools(), ProfileAnthropic)
	if err != nil {
		t.Fatalf("FormatTools failed: %v", err)
	}
	if a.Profile != ProfileAnthropic || a.OpenAI != nil || len(a.Anthropic) != 2 {
		t.Errorf("Anthropic catalog leaked into other layout: %+v", a)
	}

	o, err := FormatTools(sampleTools(), ProfileOpenAI)
	if err != nil {
		t.Fatalf("FormatTools failed: %v", err)
	}
	if o.Profile != ProfileOpenAI || o.Anthropic != nil || len(o.OpenAI) != 2 {
		t.Errorf("OpenAI catalog leaked into other layout: %+v", o)
	}
}

func TestFormatToolsDoesNotMutateInput(t *testing.T) {
	tools := sampleTools()
	before := sampleTools()

	if _, err := FormatTools(tools, ProfileAnthropic); err != nil {
		t.Fatalf("FormatTools failed: %v", err)
	}
	if _, err := FormatTools(tools, ProfileOpenAI); err != nil {
		t.Fatalf("FormatTools failed: %v", err)
	}
	if !reflect.DeepEqual(tools, before) {
		t.Error("FormatTools modified its input")
	}
}

func TestFormatToolsKeepsNamesAndSchemas(t *testing.T) {
	o, _ := FormatTools(sampleTools(), ProfileOpenAI)
	if o.OpenAI[0].Function.Name != "add" {
		t.Errorf("Expected name 'add', got %q", o.OpenAI[0].Function.Name)
	}
	params := map[string]interface{}(o.OpenAI[0].Function.Parameters)
	if !reflect.DeepEqual(params, sampleTools()[0].InputSchema) {
		t.Errorf("Expected schema passed through unchanged, got %v", params)
	}

	a, _ := FormatTools(sampleTools(), ProfileAnthropic)
	if a.Anthropic[1].OfTool.Name != "now" {
		t.Errorf("Expected name 'now', got %q", a.Anthropic[1].OfTool.Name)
	}
}

func TestFormatToolsEmptyCatalog(t *testing.T) {
	for _, profile := range []Profile{ProfileAnthropic, ProfileOpenAI} {
		specs, err := FormatTools(nil, profile)
		if err != nil {
			t.Fatalf("%s: FormatTools failed: %v", profile, err)
		}
		if specs.Len() != 0 {
			t.Errorf("%s: expected empty catalog, got %d", profile, specs.Len())
		}
	}
}

func TestFormatToolsUnknownProfile(t *testing.T) {
	_, err := FormatTools(sampleTools(), Profile("gemini"))
	if !stderrors.Is(err, errors.ErrUnknownProfile) {
		t.Errorf("Expected ErrUnknownProfile, got %v", err)
	}
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in      string
		want    Profile
		wantErr bool
	}{
		{"anthropic", ProfileAnthropic, false},
		{"OpenAI", ProfileOpenAI, false},
		{" anthropic ", ProfileAnthropic, false},
		{"gemini", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProfile(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProfile(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProfile(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if tt.wantErr && !stderrors.Is(err, errors.ErrUnknownProfile) {
			t.Errorf("ParseProfile(%q) should wrap ErrUnknownProfile", tt.in)
		}
	}
}
