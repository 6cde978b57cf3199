package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voxop/voxop/internal/errors"
)

// LoadPolicy reads a Policy from a YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewPolicyNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "read policy file", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileUnmarshal, "unmarshal policy", err)
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// DefaultPolicy returns the conservative built-in policy used when no
// policy file exists: destructive payload shapes are blocked, writes
// and process control confirm, and credential access is denied.
func DefaultPolicy() *Policy {
	return &Policy{
		Version: 1,
		Default: ActionAllow,
		Capabilities: map[Capability]Action{
			CapabilityFilesystemWrite:  ActionConfirm,
			CapabilityProcessControl:   ActionConfirm,
			CapabilityNetworking:       ActionAllow,
			CapabilityInputAutomation:  ActionAllow,
			CapabilityCredentialAccess: ActionDeny,
		},
		BlockPatterns: []string{
			`rm\s+-[a-z]*r[a-z]*f[a-z]*\s+(/|~)(\s|$)`,
			`\bmkfs(\.\w+)?\b`,
			`\bdd\b.*\bof=/dev/`,
			`>\s*/dev/sd[a-z]`,
			`:\(\)\s*\{`,
		},
		ConfirmPatterns: []string{
			`\bsudo\b`,
			`\brm\s+-[a-z]*r`,
			`\bgit\s+push\b.*--force`,
			`\bchmod\s+(-R\s+)?777\b`,
			`\bshutdown\b|\breboot\b`,
		},
	}
}

// SavePolicy writes a Policy to a YAML file.
func SavePolicy(policy *Policy, path string) error {
	data, err := yaml.Marshal(policy)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write policy file: %w", err)
	}

	return nil
}
