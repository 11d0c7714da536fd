package core

import "unitledger/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	installDefaultRules(engine)
	return engine
}

func defaultRules() []Rule {
	return []Rule{OwnershipIndexRule(), LineageIntegrityRule()}
}

// installDefaultRules registers every built-in rule the engine does not already carry.
func installDefaultRules(engine *RulesEngine) {
	if engine == nil {
		return
	}
	have := make(map[string]struct{})
	for _, rule := range engine.Rules() {
		have[rule.Name()] = struct{}{}
	}
	for _, rule := range defaultRules() {
		if _, ok := have[rule.Name()]; ok {
			continue
		}
		engine.Register(rule)
	}
}

// extractRulesEngine returns the engine of stores that expose one.
func extractRulesEngine(store PersistentStore) *RulesEngine {
	provider, ok := store.(interface{ RulesEngine() *domain.RulesEngine })
	if !ok {
		return nil
	}
	return provider.RulesEngine()
}
