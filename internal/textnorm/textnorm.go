// Package textnorm normalizes email text and addresses ahead of similarity
// comparison, so that quoting artifacts, reply prefixes and unicode variants
// do not defeat duplicate detection.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	quoteMarkers   = regexp.MustCompile(`(?m)^>+\s*`)
	signatureBlock = regexp.MustCompile(`(?s)--+\s*\n.*`)
	sentFromLine   = regexp.MustCompile(`(?mi)^sent\s+from\s+my\s+.*$`)
	replyPrefix    = regexp.MustCompile(`(?i)^(re|fwd|fw):\s*`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	displayName    = regexp.MustCompile(`<(.+@.+)>`)
	wordToken      = regexp.MustCompile(`\w+`)
)

// Body normalizes email body text for semantic comparison: strips quote
// markers, signature blocks and mobile footers, then collapses whitespace.
func Body(content string) string {
	if content == "" {
		return ""
	}
	content = quoteMarkers.ReplaceAllString(content, "")
	content = signatureBlock.ReplaceAllString(content, "")
	content = sentFromLine.ReplaceAllString(content, "")
	content = whitespaceRun.ReplaceAllString(content, " ")
	return strings.TrimSpace(norm.NFKC.String(content))
}

// Subject normalizes a subject line, removing reply/forward prefixes.
func Subject(subject string) string {
	if subject == "" {
		return ""
	}
	for {
		stripped := replyPrefix.ReplaceAllString(subject, "")
		if stripped == subject {
			break
		}
		subject = stripped
	}
	subject = whitespaceRun.ReplaceAllString(subject, " ")
	return strings.TrimSpace(norm.NFKC.String(subject))
}

// Address normalizes an email address for comparison, unwrapping the
// "Display Name <addr>" form and lowercasing.
func Address(email string) string {
	if email == "" {
		return ""
	}
	if m := displayName.FindStringSubmatch(email); m != nil {
		email = m[1]
	}
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
}

// Domain extracts the domain part of an address, or "" when absent.
func Domain(email string) string {
	addr := Address(email)
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		return addr[at+1:]
	}
	return ""
}

// AddressSet splits a comma-separated recipient list into a normalized set.
func AddressSet(recipients string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, r := range strings.Split(recipients, ",") {
		if addr := Address(r); addr != "" {
			set[addr] = struct{}{}
		}
	}
	return set
}

// Tokens lowercases text and splits it into word tokens, used by the
// lexical similarity fallback.
func Tokens(text string) []string {
	return wordToken.FindAllString(strings.ToLower(norm.NFKC.String(text)), -1)
}
