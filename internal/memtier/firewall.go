package memtier

import "strings"

// Verdict is the outcome of running a proposed Core-tier entry through the
// consistency firewall.
type Verdict int

const (
	Accept Verdict = iota
	Quarantine
)

// FirewallResult is the pure output of CheckCoreWrite: a verdict and, when
// quarantined, a human-readable reason.
type FirewallResult struct {
	Verdict Verdict
	Reason  string
}

// coreDenyPhrases is the minimal, literal deny-list from spec §4.4: content
// that contradicts the kernel's values regardless of source. Extending this
// list is product policy, not architecture (spec §9 open questions), so it
// stays deliberately small.
var coreDenyPhrases = []string{
	"deceive the user",
	"lie",
}

// CheckCoreWrite is the consistency firewall (C5): a pure function from
// (kernel, proposed entry) to accept/quarantine. Only Core-tier writes are
// gated; every other tier passes through unconditionally.
func CheckCoreWrite(kernel Kernel, e Entry) FirewallResult {
	if e.Tier != Core {
		return FirewallResult{Verdict: Accept}
	}

	normalized := NormalizeContent(e.Content)

	for _, phrase := range coreDenyPhrases {
		if strings.Contains(normalized, phrase) {
			return FirewallResult{
				Verdict: Quarantine,
				Reason:  "content contradicts kernel values: matches disallowed phrase \"" + phrase + "\"",
			}
		}
	}

	for _, value := range kernel.Values {
		if reversal, ok := explicitReversal(normalized, value); ok {
			return FirewallResult{
				Verdict: Quarantine,
				Reason:  "content is an explicit reversal of kernel value \"" + value + "\": " + reversal,
			}
		}
	}

	return FirewallResult{Verdict: Accept}
}

// explicitReversal reports whether normalized content explicitly negates a
// kernel value, e.g. "stop being radically honest" against the value
// "radically honest".
func explicitReversal(normalized, value string) (string, bool) {
	valueNorm := NormalizeContent(value)
	if valueNorm == "" {
		return "", false
	}
	for _, prefix := range []string{"stop being ", "do not be ", "don't be ", "never be "} {
		if strings.Contains(normalized, prefix+valueNorm) {
			return prefix + valueNorm, true
		}
	}
	return "", false
}
