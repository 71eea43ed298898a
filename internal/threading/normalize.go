package threading

import (
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"regexp"
	"sort"
	"strings"
)

// subjectPrefixPattern matches a single leading reply/forward marker.
var subjectPrefixPattern = regexp.MustCompile(`^(?i:re|fw|fwd|forward):\s*`)

// NormalizeSubject trims whitespace, lowercases, and strips exactly one
// leading reply/forward marker. "Re: Re: foo" normalizes to "re: foo" - the
// strip is a single pass, not recursive, so replies and originals with one
// marker land on the same value.
func NormalizeSubject(subject string) string {
	s := strings.ToLower(strings.TrimSpace(subject))
	s = subjectPrefixPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// CanonicalAddress reduces a participant identifier to a stable form: the
// bare address from an RFC 5322 "Name <addr>" mailbox when parseable,
// lowercased and trimmed either way.
func CanonicalAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	return strings.ToLower(addr)
}

// BuildFlowKey derives the stable composite key a flow is matched on. The
// participant set is deduplicated and order-independent: two calls with the
// same multiset of participants and the same normalized subject always
// produce an identical key.
func BuildFlowKey(participants []string, normalizedSubject string) string {
	set := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if canonical := CanonicalAddress(p); canonical != "" {
			set[canonical] = struct{}{}
		}
	}

	addrs := make([]string, 0, len(set))
	for p := range set {
		addrs = append(addrs, p)
	}
	sort.Strings(addrs)

	raw := strings.Join(addrs, ",") + "|" + normalizedSubject
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
