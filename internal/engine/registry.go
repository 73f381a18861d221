package engine

import (
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

// RuleAPIVersion is the version of the rule interface this engine build
// exposes. Registered rule artifacts must be compatible with it.
const RuleAPIVersion = "1.0.0"

// ruleAPIConstraint is what registered artifact versions are checked
// against: same major as RuleAPIVersion.
const ruleAPIConstraint = "^1.0.0"

// RuleFactory builds a fresh rule instance per engine. Factories must not
// share mutable state between the instances they return.
type RuleFactory func() Rule

type registration struct {
	version *semver.Version
	factory RuleFactory
}

// Registry holds versioned rule implementations. Registration replaces the
// previous artifact for the same name atomically; engines resolve a factory
// at start and keep the instance for their lifetime, so a swap affects new
// engines only.
type Registry struct {
	rules map[string]registration
	mu    sync.RWMutex
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[string]registration),
	}
}

// Register installs or atomically replaces the rule artifact for name.
// The artifact version must parse as semver and be compatible with the
// engine's rule API version.
func (r *Registry) Register(name, version string, factory RuleFactory) error {
	if name == "" || factory == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "rule registration requires a name and a factory")
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "rule %s version %q is not valid semver", name, version)
	}

	constraint, err := semver.NewConstraint(ruleAPIConstraint)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidVersion, "bad rule API constraint", err)
	}

	if !constraint.Check(v) {
		return errors.Newf(errors.ErrCodeRuleVersionClash,
			"rule %s version %s is not compatible with rule API %s", name, version, RuleAPIVersion)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules[name] = registration{version: v, factory: factory}

	return nil
}

// Resolve returns a new rule instance for name. When versionConstraint is
// non-empty, the registered artifact version must satisfy it.
func (r *Registry) Resolve(name, versionConstraint string) (Rule, error) {
	r.mu.RLock()
	reg, ok := r.rules[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrCodeRuleNotRegistered, "no rule registered under %q", name)
	}

	if versionConstraint != "" {
		constraint, err := semver.NewConstraint(versionConstraint)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidVersion, err, "bad version constraint %q", versionConstraint)
		}

		if !constraint.Check(reg.version) {
			return nil, errors.Newf(errors.ErrCodeRuleVersionClash,
				"rule %s is at version %s, constraint %q not satisfied", name, reg.version, versionConstraint)
		}
	}

	return reg.factory(), nil
}

// Version returns the registered artifact version for name.
func (r *Registry) Version(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.rules[name]
	if !ok {
		return "", false
	}

	return reg.version.String(), true
}

// Names returns the registered rule names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}

	return names
}
