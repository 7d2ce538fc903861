// Package validate classifies and validates email addresses.
//
// Domain and MX existence checks are delegated to a DNSResolver capability;
// when none is wired in, validation degrades to syntactic-only with reduced
// confidence rather than failing.
package validate

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/mediadesk/scout/internal/domain"
)

// DNSResolver is the external lookup capability. *net.Resolver satisfies it
// through NetResolver; tests substitute a stub.
type DNSResolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// NetResolver adapts *net.Resolver to DNSResolver.
type NetResolver struct {
	R *net.Resolver
}

func (n NetResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	return n.resolver().LookupMX(ctx, domain)
}

func (n NetResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	return n.resolver().LookupHost(ctx, host)
}

func (n NetResolver) resolver() *net.Resolver {
	if n.R != nil {
		return n.R
	}
	return net.DefaultResolver
}

// Options controls a single validation.
type Options struct {
	CheckDomain bool // perform DNS lookups when a resolver is available
}

// Report is the outcome of validating one address.
type Report struct {
	IsValid      bool                         `json:"is_valid"`
	IsDisposable bool                         `json:"is_disposable"`
	IsTemporary  bool                         `json:"is_temporary"`
	DomainExists bool                         `json:"domain_exists"`
	MXRecords    []string                     `json:"mx_records,omitempty"`
	Type         domain.EmailType             `json:"type"`
	Status       domain.EmailValidationStatus `json:"status"`
	SpamScore    float64                      `json:"spam_score"`
	Confidence   float64                      `json:"confidence"`
	Reasoning    string                       `json:"reasoning"`
}

// genericLocalParts are role addresses that never identify a person.
var genericLocalParts = map[string]struct{}{
	"info": {}, "contact": {}, "support": {}, "hello": {}, "admin": {},
	"office": {}, "sales": {}, "press": {}, "media": {}, "news": {},
	"editor": {}, "editorial": {}, "newsroom": {}, "tips": {}, "help": {},
	"team": {}, "mail": {}, "enquiries": {}, "inquiries": {}, "webmaster": {},
}

// aliasPrefixes mark shared-mailbox aliases that sit between personal and generic.
var aliasPrefixes = []string{"no-reply", "noreply", "do-not-reply", "newsletter", "notifications", "alerts", "updates"}

// defaultDisposableDomains seeds the denylist; EmailValidator callers may extend it.
var defaultDisposableDomains = []string{
	"mailinator.com", "guerrillamail.com", "10minutemail.com", "tempmail.com",
	"temp-mail.org", "throwawaymail.com", "yopmail.com", "sharklasers.com",
	"getnada.com", "dispostable.com", "trashmail.com", "fakeinbox.com",
}

var emailSyntaxRE = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// EmailValidator validates and classifies addresses.
type EmailValidator struct {
	resolver   DNSResolver
	disposable map[string]struct{}
}

// NewEmailValidator builds a validator. resolver may be nil (syntactic-only
// mode); extraDisposable extends the built-in denylist.
func NewEmailValidator(resolver DNSResolver, extraDisposable []string) *EmailValidator {
	denylist := make(map[string]struct{}, len(defaultDisposableDomains)+len(extraDisposable))
	for _, d := range defaultDisposableDomains {
		denylist[d] = struct{}{}
	}
	for _, d := range extraDisposable {
		denylist[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &EmailValidator{resolver: resolver, disposable: denylist}
}

// ValidateEmail classifies addr and checks its domain where possible.
// Absence of the DNS capability is a degradation, never a hard failure.
func (v *EmailValidator) ValidateEmail(ctx context.Context, addr string, opts Options) (Report, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	report := Report{Type: domain.EmailUnknown, Status: domain.EmailUnvalidated}

	if !emailSyntaxRE.MatchString(addr) {
		report.Status = domain.EmailInvalid
		report.Reasoning = "malformed address"
		return report, nil
	}

	at := strings.LastIndex(addr, "@")
	local, host := addr[:at], addr[at+1:]

	report.IsValid = true
	report.Type = classifyLocalPart(local)
	report.SpamScore = spamScore(local, host)

	if _, ok := v.disposable[host]; ok {
		report.IsDisposable = true
		report.IsTemporary = true
		report.Status = domain.EmailRisky
		report.Confidence = 0.4
		report.Reasoning = "disposable domain " + host
		return report, nil
	}

	if v.resolver == nil || !opts.CheckDomain {
		// Syntactic-only mode.
		report.Status = domain.EmailValid
		report.Confidence = 0.6
		report.Reasoning = "syntax valid; domain not verified (no DNS capability)"
		return report, nil
	}

	mxs, mxErr := v.resolver.LookupMX(ctx, host)
	if mxErr == nil && len(mxs) > 0 {
		report.DomainExists = true
		for _, mx := range mxs {
			report.MXRecords = append(report.MXRecords, strings.TrimSuffix(mx.Host, "."))
		}
	} else if _, hostErr := v.resolver.LookupHost(ctx, host); hostErr == nil {
		// Domain resolves but has no MX; mail may still route via A record.
		report.DomainExists = true
	}

	if report.DomainExists {
		report.Status = domain.EmailValid
		report.Confidence = 0.9
		report.Reasoning = fmt.Sprintf("domain %s resolves (%d MX records)", host, len(report.MXRecords))
	} else {
		report.Status = domain.EmailRisky
		report.Confidence = 0.3
		report.Reasoning = "domain does not resolve"
	}
	return report, nil
}

// classifyLocalPart distinguishes personal addresses from role mailboxes.
func classifyLocalPart(local string) domain.EmailType {
	if _, ok := genericLocalParts[local]; ok {
		return domain.EmailGeneric
	}
	for _, prefix := range aliasPrefixes {
		if strings.HasPrefix(local, prefix) {
			return domain.EmailAlias
		}
	}
	// first.last, first_last, or first-last shapes read as personal.
	for _, sep := range []string{".", "_", "-"} {
		parts := strings.Split(local, sep)
		if len(parts) == 2 && len(parts[0]) >= 2 && len(parts[1]) >= 2 && isAlphabetic(parts[0]) && isAlphabetic(parts[1]) {
			return domain.EmailPersonal
		}
	}
	if isAlphabetic(local) && len(local) >= 3 {
		return domain.EmailPersonal
	}
	return domain.EmailUnknown
}

// spamScore estimates how machine-generated an address looks, in [0,1].
func spamScore(local, host string) float64 {
	score := 0.0

	digits := 0
	for _, r := range local {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits >= 4 {
		score += 0.4
	} else if digits >= 2 {
		score += 0.15
	}

	if len(local) > 24 {
		score += 0.2
	}
	if strings.Count(local, ".")+strings.Count(local, "_")+strings.Count(local, "-") > 2 {
		score += 0.15
	}

	for _, tld := range []string{".xyz", ".top", ".click", ".loan", ".work"} {
		if strings.HasSuffix(host, tld) {
			score += 0.25
			break
		}
	}

	if score > 1 {
		score = 1
	}
	return score
}

func isAlphabetic(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
