package strategy

import (
	"github.com/trade-manager/trade-engine/internal/engine"
)

// Built-in rule names.
const (
	RuleBracketEntry = "bracket-entry"
	RuleMACross      = "ma-cross"
)

// RegisterBuiltins installs the built-in rules into the registry. The
// config strings are parsed once here; each engine gets a fresh rule
// instance from the factory.
func RegisterBuiltins(registry *engine.Registry, configs map[string]string) error {
	if jsonConfig, ok := configs[RuleBracketEntry]; ok {
		config, err := ParseBracketEntryConfig(jsonConfig)
		if err != nil {
			return err
		}

		err = registry.Register(RuleBracketEntry, "1.0.0", func() engine.Rule {
			return NewBracketEntryRule(*config)
		})
		if err != nil {
			return err
		}
	}

	if jsonConfig, ok := configs[RuleMACross]; ok {
		config, err := ParseMACrossConfig(jsonConfig)
		if err != nil {
			return err
		}

		err = registry.Register(RuleMACross, "1.0.0", func() engine.Rule {
			return NewMACrossRule(*config)
		})
		if err != nil {
			return err
		}
	}

	return nil
}
