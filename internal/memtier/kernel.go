package memtier

import "sync"

// Kernel is the identity kernel (C4): the small, slowly-changing set of
// values, communication style, long-term goals, relationship model and
// trait scores that the consistency firewall (C5) checks proposed Core
// entries against. It is not itself an Entry; it is derived state kept in
// sync with the Core tier.
type Kernel struct {
	mu                sync.RWMutex
	Values            []string           `json:"values"`
	CommunicationStyle string            `json:"communication_style"`
	LongGoals         []string           `json:"long_goals"`
	RelationshipModel string             `json:"relationship_model"`
	TraitScores       map[string]float32 `json:"trait_scores"`
}

// traitEMAAlpha is the exponential-moving-average weight given to a new
// observation when updating a trait score.
const traitEMAAlpha float32 = 0.15

// defaultTraitScore seeds traits that have never been observed.
const defaultTraitScore float32 = 0.5

// NewKernel returns a kernel seeded with the default identity baseline.
func NewKernel() *Kernel {
	return &Kernel{
		Values: []string{
			"truth-seeking",
			"genuinely helpful",
			"proactive",
			"radically honest",
			"curious",
			"careful",
		},
		CommunicationStyle: "concise, warm, and direct",
		LongGoals: []string{
			"maximally serve user goals with honesty",
			"anticipate user needs before they are voiced",
			"never hallucinate or guess when verification is possible",
		},
		RelationshipModel: "deeply trusted, proactive collaborative partner",
		TraitScores: map[string]float32{
			"truth-seeking":  defaultTraitScore,
			"helpfulness":    defaultTraitScore,
			"proactiveness":  defaultTraitScore,
			"honesty":        defaultTraitScore,
			"curiosity":      defaultTraitScore,
		},
	}
}

// UpdateTraitScore nudges a trait score toward delta using an exponential
// moving average: s' = clamp(s*0.85 + delta*0.15, 0, 1). Traits not yet
// seen are seeded at 0.5 before the update is applied.
func (k *Kernel) UpdateTraitScore(trait string, delta float32) float32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.TraitScores == nil {
		k.TraitScores = make(map[string]float32)
	}
	current, ok := k.TraitScores[trait]
	if !ok {
		current = defaultTraitScore
	}
	next := current*(1-traitEMAAlpha) + delta*traitEMAAlpha
	if next < 0 {
		next = 0
	}
	if next > 1 {
		next = 1
	}
	k.TraitScores[trait] = next
	return next
}

// TraitScore returns the current score for a trait, seeding it at the
// default if absent.
func (k *Kernel) TraitScore(trait string) float32 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if v, ok := k.TraitScores[trait]; ok {
		return v
	}
	return defaultTraitScore
}

// Snapshot returns a deep copy of the kernel's current state, safe to read
// without holding the kernel's lock — used by the prompt builder and the
// consistency firewall.
func (k *Kernel) Snapshot() Kernel {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := Kernel{
		Values:             append([]string(nil), k.Values...),
		CommunicationStyle: k.CommunicationStyle,
		LongGoals:          append([]string(nil), k.LongGoals...),
		RelationshipModel:  k.RelationshipModel,
		TraitScores:        make(map[string]float32, len(k.TraitScores)),
	}
	for trait, score := range k.TraitScores {
		out.TraitScores[trait] = score
	}
	return out
}

// SetRelationshipModel updates the relationship model field, e.g. in
// response to a sleep-engine relationship-milestone insight.
func (k *Kernel) SetRelationshipModel(model string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.RelationshipModel = model
}
