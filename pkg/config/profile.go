package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeploymentProfile pins the governance knobs one jurisdiction ships with.
// A loaded profile is authoritative: applying it overrides whatever the
// environment said, so an operator cannot quietly loosen a jurisdiction's
// settings with an env var.
type DeploymentProfile struct {
	Name                    string          `yaml:"name" json:"name"`
	Code                    string          `yaml:"code" json:"code"`
	RegulatorQuorum         int             `yaml:"regulator_quorum" json:"regulator_quorum"`
	RoHCeiling              float64         `yaml:"roh_ceiling" json:"roh_ceiling"`
	AllowNeuromorphReversal bool            `yaml:"allow_neuromorph_reversal" json:"allow_neuromorph_reversal"`
	Retention               RetentionConfig `yaml:"retention" json:"retention"`
	Archive                 ArchiveConfig   `yaml:"archive" json:"archive"`
}

// RetentionConfig defines how long records are kept.
type RetentionConfig struct {
	LedgerDays   int `yaml:"ledger_days" json:"ledger_days"`
	AuditLogDays int `yaml:"audit_log_days" json:"audit_log_days"`
}

// ArchiveConfig names the evidence archive a jurisdiction requires.
type ArchiveConfig struct {
	Type     string `yaml:"type" json:"type"`
	Bucket   string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// LoadProfile loads profile_<code>.yaml from profilesDir.
func LoadProfile(profilesDir, code string) (*DeploymentProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}
	return parseProfile(data, code)
}

// LoadAllProfiles loads every profile_*.yaml in profilesDir, keyed by code.
func LoadAllProfiles(profilesDir string) (map[string]*DeploymentProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*DeploymentProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		base := filepath.Base(path)
		code := strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")

		p, err := parseProfile(data, code)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		profiles[p.Code] = p
	}
	return profiles, nil
}

func parseProfile(data []byte, code string) (*DeploymentProfile, error) {
	var p DeploymentProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}
	if p.Code == "" {
		p.Code = code
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate rejects profiles that would weaken the risk invariant.
func (p *DeploymentProfile) Validate() error {
	if p.Code == "" {
		return fmt.Errorf("%w: profile needs a jurisdiction code", ErrBadValue)
	}
	if p.RegulatorQuorum < 0 {
		return fmt.Errorf("%w: profile %s: regulator_quorum must not be negative",
			ErrBadValue, p.Code)
	}
	if p.RoHCeiling <= 0 || p.RoHCeiling > 1 {
		return fmt.Errorf("%w: profile %s: roh_ceiling must be in (0,1], got %g",
			ErrBadValue, p.Code, p.RoHCeiling)
	}
	return nil
}

// ApplyProfile overwrites the governance fields with the profile's. The
// environment keeps only operational fields (ports, paths, endpoints).
func (c *Config) ApplyProfile(p *DeploymentProfile) {
	c.Jurisdiction = p.Code
	c.RegulatorQuorum = p.RegulatorQuorum
	c.RoHCeiling = p.RoHCeiling
	c.AllowNeuromorphReversal = p.AllowNeuromorphReversal
	if p.Archive.Type != "" {
		c.ArchiveType = p.Archive.Type
	}
}
