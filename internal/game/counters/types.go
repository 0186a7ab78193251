package counters

// CounterType represents a type of counter used by card effects.
type CounterType string

const (
	// Stat-modifying counters
	CounterTypeBlessing CounterType = "blessing" // +1 attack / +1 health per counter
	CounterTypeCurse    CounterType = "curse"    // -1 attack / -1 health per counter

	// Accumulation counters
	CounterTypeCharge CounterType = "charge"
	CounterTypeDoom   CounterType = "doom"
	CounterTypeFate   CounterType = "fate"
	CounterTypeGrowth CounterType = "growth"
	CounterTypeOmen   CounterType = "omen"
	CounterTypeVeil   CounterType = "veil"
)

// String returns the string representation of the counter type.
func (ct CounterType) String() string {
	return string(ct)
}

// CreateInstance creates a counter instance of this type with the given amount.
func (ct CounterType) CreateInstance(amount int) *Counter {
	return NewCounter(string(ct), amount)
}

// AttackDelta returns the per-counter attack modification for stat counters.
func (ct CounterType) AttackDelta() int {
	switch ct {
	case CounterTypeBlessing:
		return 1
	case CounterTypeCurse:
		return -1
	default:
		return 0
	}
}

// HealthDelta returns the per-counter health modification for stat counters.
func (ct CounterType) HealthDelta() int {
	switch ct {
	case CounterTypeBlessing:
		return 1
	case CounterTypeCurse:
		return -1
	default:
		return 0
	}
}

// StatDeltas sums attack/health modifications across a collection.
func StatDeltas(cs *Counters) (attack, health int) {
	if cs == nil {
		return 0, 0
	}
	for name, counter := range cs.Counters {
		ct := CounterType(name)
		attack += ct.AttackDelta() * counter.Count
		health += ct.HealthDelta() * counter.Count
	}
	return attack, health
}
