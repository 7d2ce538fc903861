// Package social extracts and validates social media handles from free text.
//
// Detection is driven by a per-platform descriptor table: adding a platform
// is a data change, not new branching code. Enrichment (followers,
// verification) sits behind the Enricher interface so a live platform API
// can replace the heuristic stub without touching detection.
package social

import (
	"regexp"
	"strings"

	"github.com/mediadesk/scout/internal/domain"
)

// PlatformSpec describes how one platform's profile references look and how
// to build the canonical profile URL for a handle.
type PlatformSpec struct {
	Name      string
	URLRE     *regexp.Regexp // profile URL with handle capture group
	MentionRE *regexp.Regexp // optional bare-handle pattern (@name)
	MinLen    int
	MaxLen    int
	URLFor    func(handle string) string
}

// Platforms is the detection table, checked in order.
var Platforms = []PlatformSpec{
	{
		Name:      "twitter",
		URLRE:     regexp.MustCompile(`(?i)(?:twitter\.com|x\.com)/(?:#!/)?@?([A-Za-z0-9_]{1,15})\b`),
		MentionRE: regexp.MustCompile(`(?:^|[\s(])@([A-Za-z0-9_]{2,15})\b`),
		MinLen:    2,
		MaxLen:    15,
		URLFor:    func(h string) string { return "https://twitter.com/" + h },
	},
	{
		Name:   "linkedin",
		URLRE:  regexp.MustCompile(`(?i)linkedin\.com/(?:in|company|pub)/([A-Za-z0-9\-_%]{3,100})\b`),
		MinLen: 3,
		MaxLen: 100,
		URLFor: linkedinURL,
	},
	{
		Name:   "instagram",
		URLRE:  regexp.MustCompile(`(?i)instagram\.com/([A-Za-z0-9_.]{2,30})\b`),
		MinLen: 2,
		MaxLen: 30,
		URLFor: func(h string) string { return "https://instagram.com/" + h },
	},
	{
		Name:   "facebook",
		URLRE:  regexp.MustCompile(`(?i)facebook\.com/(?:profile\.php\?id=)?([A-Za-z0-9.]{5,50})\b`),
		MinLen: 5,
		MaxLen: 50,
		URLFor: func(h string) string { return "https://facebook.com/" + h },
	},
	{
		Name:   "youtube",
		URLRE:  regexp.MustCompile(`(?i)youtube\.com/(?:c/|channel/|user/|@)([A-Za-z0-9_\-]{3,60})\b`),
		MinLen: 3,
		MaxLen: 60,
		URLFor: func(h string) string { return "https://youtube.com/@" + h },
	},
}

// linkedinURL infers the in/ vs company/ path from handle shape: personal
// slugs are typically first-last with letters; purely alphanumeric brand
// slugs without separators read as company pages.
func linkedinURL(h string) string {
	if strings.ContainsAny(h, "-_") || len(h) <= 20 {
		return "https://linkedin.com/in/" + h
	}
	return "https://linkedin.com/company/" + h
}

// nonProfilePaths are URL path segments that match platform patterns but are
// site chrome, not profiles.
var nonProfilePaths = map[string]struct{}{
	"share": {}, "intent": {}, "home": {}, "search": {}, "hashtag": {},
	"login": {}, "signup": {}, "about": {}, "privacy": {}, "settings": {},
	"watch": {}, "pages": {}, "groups": {}, "events": {}, "status": {},
}

// Detect extracts social profiles from free text, deduplicated by
// platform:handle, each with its canonical profile URL.
func Detect(text string) []domain.SocialProfile {
	seen := make(map[string]struct{})
	var profiles []domain.SocialProfile

	add := func(platform PlatformSpec, handle string) {
		handle = strings.Trim(handle, "._-")
		if handle == "" {
			return
		}
		if _, skip := nonProfilePaths[strings.ToLower(handle)]; skip {
			return
		}
		p := domain.SocialProfile{
			Platform: platform.Name,
			Handle:   handle,
			URL:      platform.URLFor(handle),
		}
		if _, dup := seen[p.Key()]; dup {
			return
		}
		seen[p.Key()] = struct{}{}
		profiles = append(profiles, p)
	}

	for _, platform := range Platforms {
		for _, m := range platform.URLRE.FindAllStringSubmatch(text, -1) {
			add(platform, m[1])
		}
		if platform.MentionRE == nil {
			continue
		}
		for _, m := range platform.MentionRE.FindAllStringSubmatch(text, -1) {
			add(platform, m[1])
		}
	}
	return profiles
}

func platformByName(name string) *PlatformSpec {
	for i := range Platforms {
		if Platforms[i].Name == name {
			return &Platforms[i]
		}
	}
	return nil
}
