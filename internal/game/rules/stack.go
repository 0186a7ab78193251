package rules

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StackItemKind describes the type of pending effect on the stack.
type StackItemKind string

const (
	StackItemSpell       StackItemKind = "SPELL"
	StackItemAbility     StackItemKind = "ABILITY"
	StackItemTriggered   StackItemKind = "TRIGGERED"
	StackItemReplacement StackItemKind = "REPLACEMENT"
	StackItemStateBased  StackItemKind = "STATE_BASED"
)

// BasePriority returns the numeric priority band for the kind. The exact
// values are a contract relied on by resolution-order consumers:
// state-based > replacement > triggered > ability > spell.
func (k StackItemKind) BasePriority() int {
	switch k {
	case StackItemStateBased:
		return 5000
	case StackItemReplacement:
		return 4000
	case StackItemTriggered:
		return 3000
	case StackItemAbility:
		return 2000
	case StackItemSpell:
		return 1000
	default:
		return 1000
	}
}

// ResolutionMode selects the ordering used when resolving pending items.
type ResolutionMode string

const (
	// ResolveLIFO resolves in reverse sequence order, the traditional
	// stack-based card game semantics.
	ResolveLIFO ResolutionMode = "LIFO"
	// ResolvePriority resolves by descending priority, timestamp tie-break.
	ResolvePriority ResolutionMode = "PRIORITY"
	// ResolveTimestamp resolves in pure FIFO order.
	ResolveTimestamp ResolutionMode = "TIMESTAMP"
)

// EffectContext carries the execution context of a pending effect.
type EffectContext struct {
	SourceCardID    string
	Controller      string
	Targets         []string
	TriggeringEvent *Event
	Game            GameContext
}

// EffectFunc performs an effect against the caller's working state (captured
// by closure) and returns the events it produced. A non-nil error or a panic
// marks the resolution as failed.
type EffectFunc func(ctx EffectContext) ([]Event, error)

// StackItem is a pending effect occupying the stack.
type StackItem struct {
	ID          string
	Kind        StackItemKind
	Description string
	// Priority zero is treated as unset and replaced by the kind's band
	// unless PriorityExplicit pins it.
	Priority         int
	PriorityExplicit bool
	Sequence         uint64
	Timestamp        time.Time
	Context          EffectContext
	Counterable      bool
	DependsOn        []string
	Execute          EffectFunc
}

// ResolutionResult is the partial result of a single resolution step.
type ResolutionResult struct {
	ItemID      string
	Kind        StackItemKind
	Description string
	Success     bool
	Reason      string
	Events      []Event
	Err         error
}

// StackStatistics is a read-only aggregate over pending items.
type StackStatistics struct {
	Total           int
	ByKind          map[StackItemKind]int
	ByController    map[string]int
	AveragePriority float64
	Oldest          time.Time
	Newest          time.Time
}

// ItemValidator re-checks that an item is still legal to resolve. Items whose
// validator fails are discarded as failed without executing.
type ItemValidator func(StackItem) bool

// DefaultResolutionLimit caps ResolveAll iterations against effects that
// re-add new effects indefinitely.
const DefaultResolutionLimit = 100

// Stack is the priority-ordered collection of pending effects, with response
// windows, countering, and multiple resolution orderings.
type Stack struct {
	mu        sync.Mutex
	logger    *zap.Logger
	bus       *EventBus
	mode      ResolutionMode
	items     []StackItem
	nextSeq   uint64
	resolving bool
	limit     int
	validator ItemValidator

	players   [2]string
	window    bool
	responder string
	passCount int

	yieldEvery int
	yieldFn    func()
	sink       func(ResolutionResult)

	totalAdded    int
	totalResolved int
	maxDepth      int
}

// NewStack creates an empty stack in LIFO mode. The bus receives the stack
// lifecycle events (item added/resolved/failed/countered, window open/close,
// forced clears) and may be nil in tests.
func NewStack(bus *EventBus, logger *zap.Logger) *Stack {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stack{
		logger: logger,
		bus:    bus,
		mode:   ResolveLIFO,
		limit:  DefaultResolutionLimit,
	}
}

// SetMode switches the active resolution ordering.
func (s *Stack) SetMode(mode ResolutionMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Mode returns the active resolution ordering.
func (s *Stack) Mode() ResolutionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetResolutionLimit overrides the ResolveAll iteration cap.
func (s *Stack) SetResolutionLimit(limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 {
		s.limit = limit
	}
}

// SetValidator installs the re-validation check applied before execution.
func (s *Stack) SetValidator(v ItemValidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validator = v
}

// SetPlayers identifies the two players for response-window eligibility.
func (s *Stack) SetPlayers(first, second string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = [2]string{first, second}
}

// SetResultSink registers a callback invoked with every resolution result,
// including failures. Callers that trigger resolution indirectly (priority
// passes, forced drains) observe the outcomes through the sink.
func (s *Stack) SetResultSink(fn func(ResolutionResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = fn
}

// SetYieldHook installs a cooperative yield invoked after every n resolved
// items during ResolveAll. These are scheduling yields for a host loop, not
// concurrency.
func (s *Stack) SetYieldHook(every int, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.yieldEvery = every
	s.yieldFn = fn
}

// Add places a pending effect on the stack and returns its ID. Missing fields
// are assigned: a fresh ID, the next monotonic sequence number, the kind's
// priority band when no explicit priority is set, and the current timestamp.
// Adding a counterable item while no resolution is in progress opens a
// response window for the opponent of its controller.
func (s *Stack) Add(item StackItem) string {
	s.mu.Lock()
	item = s.prepareLocked(item)
	s.items = append(s.items, item)
	s.sortLocked()
	s.totalAdded++
	if depth := len(s.items); depth > s.maxDepth {
		s.maxDepth = depth
	}
	openWindow := item.Counterable && !s.resolving && !s.window
	if openWindow {
		s.window = true
		s.responder = s.opponentLocked(item.Context.Controller)
		s.passCount = 0
	} else if s.window {
		// Any addition restarts the pass count.
		s.passCount = 0
	}
	bus := s.bus
	ctx := item.Context.Game
	s.mu.Unlock()

	if bus != nil {
		bus.Emit(EventStackItemAdded, ctx, StackPayload{
			ItemID:     item.ID,
			Kind:       item.Kind,
			Controller: item.Context.Controller,
		}, CardRef(item.Context.SourceCardID), NoEntity)
		if openWindow {
			bus.Emit(EventResponseWindowOpen, ctx, StackPayload{
				ItemID:     item.ID,
				Kind:       item.Kind,
				Controller: item.Context.Controller,
			}, NoEntity, NoEntity)
		}
	}
	return item.ID
}

func (s *Stack) prepareLocked(item StackItem) StackItem {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	s.nextSeq++
	item.Sequence = s.nextSeq
	if item.Priority == 0 && !item.PriorityExplicit {
		item.Priority = item.Kind.BasePriority()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	return item
}

// sortLocked keeps the slice ordered so the next item to resolve is last.
func (s *Stack) sortLocked() {
	mode := s.mode
	sort.SliceStable(s.items, func(i, j int) bool {
		a, b := s.items[i], s.items[j]
		switch mode {
		case ResolvePriority:
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Sequence > b.Sequence
		case ResolveTimestamp:
			return a.Sequence > b.Sequence
		default: // ResolveLIFO
			return a.Sequence < b.Sequence
		}
	})
}

func (s *Stack) opponentLocked(playerID string) string {
	if playerID == s.players[0] {
		return s.players[1]
	}
	return s.players[0]
}

// ExecuteImmediately bypasses the stack entirely and executes the effect
// synchronously, returning its result. This is the explicit counterpart to
// Add for effects that must not wait for resolution.
func (s *Stack) ExecuteImmediately(item StackItem) ResolutionResult {
	s.mu.Lock()
	item = s.prepareLocked(item)
	bus := s.bus
	s.mu.Unlock()
	return s.execute(item, bus)
}

// AddResponse adds a response effect for playerID. It is accepted only while
// a response window is open and it is that player's turn to respond;
// otherwise it returns the empty string. A targeted response records a
// dependency edge to the referenced stack item.
func (s *Stack) AddResponse(item StackItem, playerID, targetItemID string) string {
	s.mu.Lock()
	if !s.window || s.resolving || playerID != s.responder {
		s.mu.Unlock()
		return ""
	}
	if targetItemID != "" {
		if !s.containsLocked(targetItemID) {
			s.mu.Unlock()
			return ""
		}
		item.DependsOn = append(item.DependsOn, targetItemID)
	}
	item.Context.Controller = playerID
	// The response passes the window to the other player.
	s.responder = s.opponentLocked(playerID)
	s.mu.Unlock()
	return s.Add(item)
}

func (s *Stack) containsLocked(id string) bool {
	for _, it := range s.items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Counter removes the item and returns true iff its counterability flag is
// set. Uncounterable or missing items leave the stack unchanged. Responses
// that depended on the countered item are discarded with it.
func (s *Stack) Counter(itemID, byPlayer string) bool {
	s.mu.Lock()
	idx := -1
	for i, it := range s.items {
		if it.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 || !s.items[idx].Counterable {
		s.mu.Unlock()
		return false
	}
	countered := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	invalidated := s.removeDependentsLocked(itemID)
	bus := s.bus
	s.mu.Unlock()

	if bus != nil {
		bus.Emit(EventStackItemCountered, countered.Context.Game, StackPayload{
			ItemID:     countered.ID,
			Kind:       countered.Kind,
			Controller: byPlayer,
		}, PlayerRef(byPlayer), CardRef(countered.Context.SourceCardID))
		for _, dep := range invalidated {
			bus.Emit(EventStackItemFailed, dep.Context.Game, StackPayload{
				ItemID:     dep.ID,
				Kind:       dep.Kind,
				Controller: dep.Context.Controller,
				Reason:     "dependency countered",
			}, NoEntity, NoEntity)
		}
	}
	return true
}

func (s *Stack) removeDependentsLocked(itemID string) []StackItem {
	var removed []StackItem
	kept := s.items[:0]
	for _, it := range s.items {
		depends := false
		for _, dep := range it.DependsOn {
			if dep == itemID {
				depends = true
				break
			}
		}
		if depends {
			removed = append(removed, it)
		} else {
			kept = append(kept, it)
		}
	}
	s.items = kept
	return removed
}

// PassPriority records that playerID declines to respond. Consecutive passes
// by both players with no new addition close the window and trigger automatic
// resolution; the report return tells the caller whether that happened.
func (s *Stack) PassPriority(playerID string) (resolved bool) {
	s.mu.Lock()
	if !s.window || playerID != s.responder {
		s.mu.Unlock()
		return false
	}
	s.passCount++
	s.responder = s.opponentLocked(playerID)
	both := s.passCount >= 2
	bus := s.bus
	var ctx GameContext
	if n := len(s.items); n > 0 {
		ctx = s.items[n-1].Context.Game
	}
	s.mu.Unlock()

	if bus != nil {
		bus.Emit(EventPriorityPassed, ctx, StackPayload{Controller: playerID}, PlayerRef(playerID), NoEntity)
	}
	if both {
		s.ResolveAll()
		return true
	}
	return false
}

// CloseResponseWindow closes the window explicitly without resolving.
func (s *Stack) CloseResponseWindow() {
	s.mu.Lock()
	wasOpen := s.window
	s.window = false
	s.responder = ""
	s.passCount = 0
	bus := s.bus
	s.mu.Unlock()
	if wasOpen && bus != nil {
		bus.Emit(EventResponseWindowClose, GameContext{}, StackPayload{}, NoEntity, NoEntity)
	}
}

// ResponseWindowOpen reports whether a response window is currently open,
// and for whom.
func (s *Stack) ResponseWindowOpen() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window, s.responder
}

// ResolveNext selects the top item under the current ordering, re-validates
// it, executes it against the latest state, removes it, and returns the
// partial result. It returns ok=false when the stack is empty.
func (s *Stack) ResolveNext() (ResolutionResult, bool) {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return ResolutionResult{}, false
	}
	if s.window {
		s.window = false
		s.responder = ""
		s.passCount = 0
	}
	s.resolving = true
	idx := len(s.items) - 1
	item := s.items[idx]
	s.items = s.items[:idx]
	validator := s.validator
	bus := s.bus
	s.mu.Unlock()

	var result ResolutionResult
	if validator != nil && !validator(item) {
		result = ResolutionResult{
			ItemID:      item.ID,
			Kind:        item.Kind,
			Description: item.Description,
			Success:     false,
			Reason:      "source or target no longer legal",
		}
		if bus != nil {
			bus.Emit(EventStackItemFailed, item.Context.Game, StackPayload{
				ItemID:     item.ID,
				Kind:       item.Kind,
				Controller: item.Context.Controller,
				Reason:     result.Reason,
			}, CardRef(item.Context.SourceCardID), NoEntity)
		}
	} else {
		result = s.execute(item, bus)
	}

	s.mu.Lock()
	if len(s.items) == 0 {
		s.resolving = false
	}
	s.totalResolved++
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink(result)
	}
	return result, true
}

// execute runs the item's effect with panic containment and emits the
// resolved/failed event.
func (s *Stack) execute(item StackItem, bus *EventBus) (result ResolutionResult) {
	result = ResolutionResult{
		ItemID:      item.ID,
		Kind:        item.Kind,
		Description: item.Description,
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stack item panicked during resolution",
				zap.String("item_id", item.ID),
				zap.String("kind", string(item.Kind)),
				zap.Any("panic", r),
			)
			result.Success = false
			result.Reason = "panic during execution"
		}
		if bus == nil {
			return
		}
		eventType := EventStackItemResolved
		if !result.Success {
			eventType = EventStackItemFailed
		}
		bus.Emit(eventType, item.Context.Game, StackPayload{
			ItemID:     item.ID,
			Kind:       item.Kind,
			Controller: item.Context.Controller,
			Reason:     result.Reason,
		}, CardRef(item.Context.SourceCardID), NoEntity)
	}()

	if item.Execute == nil {
		result.Success = true
		return result
	}
	events, err := item.Execute(item.Context)
	result.Events = events
	if err != nil {
		result.Success = false
		result.Reason = err.Error()
		result.Err = err
		return result
	}
	result.Success = true
	return result
}

// ResolveAll drains the stack to empty via repeated ResolveNext, bounded by
// the iteration cap. Exceeding the cap forces a logged stack clear rather
// than an unbounded loop. Results are returned in resolution order.
func (s *Stack) ResolveAll() []ResolutionResult {
	s.mu.Lock()
	limit := s.limit
	yieldEvery, yieldFn := s.yieldEvery, s.yieldFn
	s.mu.Unlock()

	var results []ResolutionResult
	for i := 0; i < limit; i++ {
		result, ok := s.ResolveNext()
		if !ok {
			return results
		}
		results = append(results, result)
		if yieldFn != nil && yieldEvery > 0 && (i+1)%yieldEvery == 0 {
			yieldFn()
		}
	}

	s.mu.Lock()
	dropped := len(s.items)
	s.items = nil
	s.resolving = false
	bus := s.bus
	s.mu.Unlock()
	if dropped > 0 {
		s.logger.Error("stack resolution exceeded iteration limit, forcing clear",
			zap.Int("limit", limit),
			zap.Int("dropped", dropped),
		)
		if bus != nil {
			bus.Emit(EventStackCleared, GameContext{}, StackPayload{
				Reason: "resolution limit exceeded",
			}, NoEntity, NoEntity)
		}
	}
	return results
}

// Clear discards all pending items without executing them.
func (s *Stack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.resolving = false
	s.window = false
	s.responder = ""
	s.passCount = 0
}

// Len returns the number of pending items.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns a copy of the pending items in resolution order (next first).
func (s *Stack) Items() []StackItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StackItem, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		out = append(out, s.items[i])
	}
	return out
}

// Statistics returns a read-only aggregate of the pending items.
func (s *Stack) Statistics() StackStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := StackStatistics{
		Total:        len(s.items),
		ByKind:       make(map[StackItemKind]int),
		ByController: make(map[string]int),
	}
	if len(s.items) == 0 {
		return stats
	}
	sum := 0
	stats.Oldest = s.items[0].Timestamp
	stats.Newest = s.items[0].Timestamp
	for _, it := range s.items {
		stats.ByKind[it.Kind]++
		stats.ByController[it.Context.Controller]++
		sum += it.Priority
		if it.Timestamp.Before(stats.Oldest) {
			stats.Oldest = it.Timestamp
		}
		if it.Timestamp.After(stats.Newest) {
			stats.Newest = it.Timestamp
		}
	}
	stats.AveragePriority = float64(sum) / float64(len(s.items))
	return stats
}

// Depth metrics for analytics consumers.
func (s *Stack) MaxDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxDepth
}

// TotalAdded returns the lifetime count of items placed on the stack.
func (s *Stack) TotalAdded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalAdded
}
