package relay

import "strings"

// NormalizePolicy controls how raw provider identifiers collapse into one
// canonical conversation key.
//
// The upstream provider emits differently-shaped ids for the same thread
// (a native thread id on webhook delivery, a pageID/senderID composite on
// API reads). Which shape wins is provider behavior, not documented contract,
// so the precedence is a policy value rather than hard-coded: if the provider
// changes id formats, operators flip the policy instead of patching call sites.
type NormalizePolicy struct {
	// PreferComposite selects the pageID+senderID composite whenever both
	// parts are present, which is what makes the provider's two shapes
	// converge on one key. Disabling it prefers the raw id when non-empty.
	PreferComposite bool

	// Separator joins pageID and senderID in the composite form.
	Separator string
}

// DefaultNormalizePolicy matches observed provider behavior.
func DefaultNormalizePolicy() NormalizePolicy {
	return NormalizePolicy{PreferComposite: true, Separator: "_"}
}

// Normalizer maps heterogeneous (conversationID, pageID, senderID) triples to
// one canonical conversation key.
//
// Every producer (webhook ingest) and every consumer (stream subscribe and
// live-event matching) must normalize with the same Normalizer instance and
// the same inputs, or events silently fail to match. Keep exactly one ingest
// call site and one subscribe call site.
type Normalizer struct {
	policy NormalizePolicy
}

// NewNormalizer constructs a Normalizer; zero-value policies get defaults.
func NewNormalizer(policy NormalizePolicy) *Normalizer {
	if policy.Separator == "" {
		policy.Separator = "_"
	}
	return &Normalizer{policy: policy}
}

// Canonical returns the canonical conversation key for a raw identifier triple.
//
// Pure and deterministic: same inputs always yield the same output, and
// semantically-equivalent alternate shapes (provider thread id vs composite)
// yield the same output. Never errors; on missing input it falls back to the
// most specific value available. Idempotent: normalizing an already-canonical
// key returns it unchanged.
func (n *Normalizer) Canonical(rawConversationID, pageID, senderID string) string {
	raw := strings.TrimSpace(rawConversationID)
	page := strings.TrimSpace(pageID)
	sender := strings.TrimSpace(senderID)

	composite := ""
	if page != "" && sender != "" {
		composite = page + n.policy.Separator + sender
	}

	if n.policy.PreferComposite && composite != "" {
		return composite
	}
	if raw != "" {
		return raw
	}
	if composite != "" {
		return composite
	}
	return page
}

// CanonicalForMessage re-normalizes the identifier fields of a live event
// exactly the way Canonical treats webhook input. Sessions must match on
// this, never on raw ids.
func (n *Normalizer) CanonicalForMessage(m StoredMessage) string {
	return n.Canonical(m.ConversationID, m.PageID, m.SenderID)
}

// CanonicalForUpdate is the ConversationUpdate analogue of CanonicalForMessage.
func (n *Normalizer) CanonicalForUpdate(u ConversationUpdate) string {
	return n.Canonical(u.ConversationID, u.PageID, u.SenderID)
}
