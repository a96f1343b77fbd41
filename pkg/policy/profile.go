package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// DefaultVersionConstraint is the profile schema range this build accepts.
const DefaultVersionConstraint = ">=1.0.0 <2.0.0"

// DefaultProfileID identifies the shipped baseline profile.
const DefaultProfileID = "policy-0001-2026"

// Profile is a per-jurisdiction governance profile. It carries everything
// that must never be hard-coded at a call site: the four-group stack, the
// regulator quorum, and the RoH ceiling.
type Profile struct {
	Version         string  `yaml:"version" json:"version"`
	ID              string  `yaml:"id" json:"id"`
	Jurisdiction    string  `yaml:"jurisdiction" json:"jurisdiction"`
	RegulatorQuorum uint8   `yaml:"regulator_quorum" json:"regulator_quorum"`
	RoHCeiling      float64 `yaml:"roh_ceiling" json:"roh_ceiling"`
	Stack           Stack   `yaml:"stack" json:"stack"`
}

const profileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "id", "jurisdiction", "regulator_quorum", "roh_ceiling", "stack"],
  "properties": {
    "version": {"type": "string", "minLength": 5},
    "id": {"type": "string", "minLength": 1},
    "jurisdiction": {"type": "string", "minLength": 2},
    "regulator_quorum": {"type": "integer", "minimum": 0, "maximum": 255},
    "roh_ceiling": {"type": "number", "minimum": 0, "maximum": 1},
    "stack": {
      "type": "object",
      "required": ["base_medical", "base_engineering", "juris_local", "quantum_ai_safety"],
      "properties": {
        "base_medical": {"type": "array", "items": {"type": "string"}},
        "base_engineering": {"type": "array", "items": {"type": "string"}},
        "juris_local": {"type": "array", "items": {"type": "string"}},
        "quantum_ai_safety": {"type": "array", "items": {"type": "string"}}
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`

// LoadProfile loads and validates profile_<code>.yaml from profilesDir.
// The document must pass the embedded JSON Schema and its version must fall
// inside DefaultVersionConstraint.
func LoadProfile(profilesDir, code string) (*Profile, error) {
	return LoadProfileConstrained(profilesDir, code, DefaultVersionConstraint)
}

// LoadProfileConstrained is LoadProfile with an explicit semver range.
func LoadProfileConstrained(profilesDir, code, constraint string) (*Profile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}
	return ParseProfile(data, constraint)
}

// ParseProfile validates and decodes a raw profile document.
func ParseProfile(data []byte, constraint string) (*Profile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	// Schema validation works on JSON-shaped values, so round-trip the
	// decoded YAML through encoding/json first.
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("profile not JSON-representable: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonBytes, &jsonDoc); err != nil {
		return nil, fmt.Errorf("profile re-decode: %w", err)
	}

	schema, err := compileProfileSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(jsonDoc); err != nil {
		return nil, fmt.Errorf("profile schema violation: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	if err := checkVersion(profile.Version, constraint); err != nil {
		return nil, err
	}

	profile.Stack = profile.Stack.Normalize()
	return &profile, nil
}

func compileProfileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("profile.schema.json", strings.NewReader(profileSchema)); err != nil {
		return nil, fmt.Errorf("register profile schema: %w", err)
	}
	schema, err := compiler.Compile("profile.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile profile schema: %w", err)
	}
	return schema, nil
}

func checkVersion(version, constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("bad version constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("bad profile version %q: %w", version, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("profile version %s outside accepted range %s", version, constraint)
	}
	return nil
}
