// Package agent implements the stakeholder agents that draft and advise on documents.
package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile IDs.
const (
	CountryDirector     = "cd"
	CDTEconomist        = "cdt_econ"
	CDTTechnical        = "cdt_tech"
	MinistryFinance     = "gov_mof"
	MinistryAgriculture = "gov_moa"
	ReviewerREN         = "ren"
	ReviewerODE         = "ode"
)

// PromptsDir is the asset folder holding per-agent system prompt overrides.
const PromptsDir = "agent_prompts"

// Profile is a stakeholder role. AllowedScopes keeps its configured order.
type Profile struct {
	ID               string   `yaml:"id"                json:"id"`
	Label            string   `yaml:"label"             json:"label"`
	Responsibilities []string `yaml:"responsibilities"  json:"responsibilities"`
	SystemPrompt     string   `yaml:"system_prompt"     json:"system_prompt"`
	AllowedScopes    []string `yaml:"allowed_scopes"    json:"allowed_scopes"`
}

// Profiles indexes profiles by ID.
type Profiles map[string]Profile

// DefaultProfiles returns the built-in stakeholder roles.
func DefaultProfiles() Profiles {
	list := []Profile{
		{
			ID:               CountryDirector,
			Label:            "Country Director",
			Responsibilities: []string{"IFAD strategy alignment", "Orchestration", "Final COSOP draft"},
			SystemPrompt: "You are the IFAD Country Director (orchestrator). Coordinate COSOP drafting, align with IFAD " +
				"strategy and SDGs, and synthesize government priorities and CDT inputs into a coherent draft.",
			AllowedScopes: []string{"public", "ifad", "government", "technical", "project"},
		},
		{
			ID:               CDTEconomist,
			Label:            "CDT Economist",
			Responsibilities: []string{"Macro context", "Economic feasibility", "Results chain realism"},
			SystemPrompt: "You are the CDT Regional Economist. Focus on macro context, growth drivers, rural poverty data, " +
				"and economic feasibility of the COSOP results chain.",
			AllowedScopes: []string{"public", "ifad", "government", "project"},
		},
		{
			ID:               CDTTechnical,
			Label:            "CDT Technical",
			Responsibilities: []string{"Technical feasibility", "SECAP/safeguards", "Operational risks"},
			SystemPrompt: "You are the CDT Technical Specialist. Focus on technical feasibility, climate and safeguards, " +
				"SECAP alignment, and operational realism.",
			AllowedScopes: []string{"public", "ifad", "technical", "project"},
		},
		{
			ID:               MinistryFinance,
			Label:            "Ministry of Finance",
			Responsibilities: []string{"National priorities", "Fiscal constraints", "Endorsement conditions"},
			SystemPrompt: "You represent the Ministry of Finance. Emphasize national development priorities, fiscal space, " +
				"policy alignment, and endorsement conditions for IFAD collaboration.",
			AllowedScopes: []string{"public", "government", "project"},
		},
		{
			ID:               MinistryAgriculture,
			Label:            "Ministry of Agriculture",
			Responsibilities: []string{"Agriculture priorities", "Food systems", "Youth employment"},
			SystemPrompt: "You represent the Ministry of Agriculture. Emphasize rural development priorities, food systems, " +
				"youth and employment, and institutional capacity.",
			AllowedScopes: []string{"public", "government", "project"},
		},
		{
			ID:               ReviewerREN,
			Label:            "REN Reviewer",
			Responsibilities: []string{"Quality control", "Compliance", "Results chain"},
			SystemPrompt: "You are REN. Provide quality and compliance review focused on results chain, safeguards, " +
				"policy alignment, and implementation capacity.",
			AllowedScopes: []string{"public", "ifad", "compliance", "project"},
		},
		{
			ID:               ReviewerODE,
			Label:            "ODE Reviewer",
			Responsibilities: []string{"Independent review", "Evidence quality", "Risk mitigation"},
			SystemPrompt:     "You are ODE. Provide an independent review, focusing on quality, compliance, and evidence use.",
			AllowedScopes:    []string{"public", "ifad", "compliance", "project"},
		},
	}
	out := make(Profiles, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out
}

type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles returns the default profiles with overrides applied.
// profilesFile is an optional YAML file whose entries replace the non-empty
// fields of the matching profile. Prompt files named <id>.md or <id>.txt under
// assetsDir/agent_prompts replace the system prompt.
func LoadProfiles(profilesPath, assetsDir string) (Profiles, error) {
	profiles := DefaultProfiles()

	if profilesPath != "" {
		data, err := os.ReadFile(profilesPath)
		if err != nil {
			return nil, fmt.Errorf("read profiles: %w", err)
		}
		var f profilesFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse profiles: %w", err)
		}
		for _, o := range f.Profiles {
			base, ok := profiles[o.ID]
			if !ok {
				return nil, fmt.Errorf("unknown profile %q", o.ID)
			}
			profiles[o.ID] = merge(base, o)
		}
	}

	if assetsDir != "" {
		for id, p := range profiles {
			prompt, err := loadPrompt(filepath.Join(assetsDir, PromptsDir), id)
			if err != nil {
				return nil, err
			}
			if prompt != "" {
				p.SystemPrompt = prompt
				profiles[id] = p
			}
		}
	}
	return profiles, nil
}

func merge(base, o Profile) Profile {
	if o.Label != "" {
		base.Label = o.Label
	}
	if len(o.Responsibilities) > 0 {
		base.Responsibilities = o.Responsibilities
	}
	if strings.TrimSpace(o.SystemPrompt) != "" {
		base.SystemPrompt = o.SystemPrompt
	}
	if len(o.AllowedScopes) > 0 {
		base.AllowedScopes = o.AllowedScopes
	}
	return base
}

func loadPrompt(dir, id string) (string, error) {
	for _, ext := range []string{".md", ".txt"} {
		data, err := os.ReadFile(filepath.Join(dir, id+ext))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read prompt %s: %w", id, err)
		}
	}
	return "", nil
}
