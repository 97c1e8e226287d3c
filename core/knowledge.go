package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// KnowledgeKind discriminates the closed set of knowledge payloads.
type KnowledgeKind string

const (
	KindText    KnowledgeKind = "text"
	KindOutcome KnowledgeKind = "outcome"
	KindRecord  KnowledgeKind = "record"
)

// Knowledge is a value stored in the agent's knowledge base. The set of
// implementations is closed (TextValue, OutcomeValue, RecordValue) so
// consumers can switch on the concrete type exhaustively.
type Knowledge interface {
	Kind() KnowledgeKind
	isKnowledge()
}

// TextValue is free text, e.g. an analysis written by the model.
type TextValue struct {
	Text string `json:"text"`
}

// Kind implements Knowledge.
func (TextValue) Kind() KnowledgeKind { return KindText }
func (TextValue) isKnowledge()        {}

// OutcomeValue stores the outcome of an executed task.
type OutcomeValue struct {
	Outcome TaskOutcome `json:"outcome"`
}

// Kind implements Knowledge.
func (OutcomeValue) Kind() KnowledgeKind { return KindOutcome }
func (OutcomeValue) isKnowledge()        {}

// RecordValue is a structured record such as a prediction or an opportunity.
type RecordValue struct {
	Fields map[string]any `json:"fields"`
}

// Kind implements Knowledge.
func (RecordValue) Kind() KnowledgeKind { return KindRecord }
func (RecordValue) isKnowledge()        {}

// KnowledgeBase is a concurrency-safe string-keyed store of Knowledge values.
type KnowledgeBase struct {
	mu      sync.RWMutex
	entries map[string]Knowledge
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{entries: make(map[string]Knowledge)}
}

// Set stores v under key, replacing any previous value.
func (kb *KnowledgeBase) Set(key string, v Knowledge) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.entries[key] = v
}

// Get returns the value stored under key.
func (kb *KnowledgeBase) Get(key string) (Knowledge, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	v, ok := kb.entries[key]

	return v, ok
}

// Delete removes key.
func (kb *KnowledgeBase) Delete(key string) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	delete(kb.entries, key)
}

// Len returns the number of entries.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	return len(kb.entries)
}

// Keys returns all keys sorted lexically.
func (kb *KnowledgeBase) Keys() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	keys := make([]string, 0, len(kb.entries))
	for k := range kb.entries {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Snapshot returns a shallow copy of the entries.
func (kb *KnowledgeBase) Snapshot() map[string]Knowledge {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make(map[string]Knowledge, len(kb.entries))
	for k, v := range kb.entries {
		out[k] = v
	}

	return out
}

// Summary renders a compact "key: value" listing used in prompts and tool contexts.
func (kb *KnowledgeBase) Summary() map[string]string {
	snap := kb.Snapshot()
	out := make(map[string]string, len(snap))

	for k, v := range snap {
		switch val := v.(type) {
		case TextValue:
			out[k] = val.Text
		case OutcomeValue:
			out[k] = val.Outcome.Result
		case RecordValue:
			out[k] = fmt.Sprintf("%v", val.Fields)
		}
	}

	return out
}

type knowledgeEnvelope struct {
	Kind  KnowledgeKind   `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes each entry with its kind discriminator.
func (kb *KnowledgeBase) MarshalJSON() ([]byte, error) {
	snap := kb.Snapshot()
	out := make(map[string]knowledgeEnvelope, len(snap))

	for k, v := range snap {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal knowledge %q: %w", k, err)
		}

		out[k] = knowledgeEnvelope{Kind: v.Kind(), Value: raw}
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes entries produced by MarshalJSON.
func (kb *KnowledgeBase) UnmarshalJSON(data []byte) error {
	var in map[string]knowledgeEnvelope
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	entries := make(map[string]Knowledge, len(in))

	for k, env := range in {
		var (
			v   Knowledge
			err error
		)

		switch env.Kind {
		case KindText:
			var t TextValue
			err = json.Unmarshal(env.Value, &t)
			v = t
		case KindOutcome:
			var o OutcomeValue
			err = json.Unmarshal(env.Value, &o)
			v = o
		case KindRecord:
			var r RecordValue
			err = json.Unmarshal(env.Value, &r)
			v = r
		default:
			err = fmt.Errorf("unknown knowledge kind %q", env.Kind)
		}

		if err != nil {
			return fmt.Errorf("unmarshal knowledge %q: %w", k, err)
		}

		entries[k] = v
	}

	kb.mu.Lock()
	kb.entries = entries
	kb.mu.Unlock()

	return nil
}
