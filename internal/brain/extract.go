package brain

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"sentinel.app/relay/internal/logquery"
	"sentinel.app/relay/internal/model"
)

// Extraction holds what rule-based pre-processing found in an utterance.
type Extraction struct {
	Service *model.ServiceIdentity
	RepoURL string
	Window  *logquery.Window
}

type servicePattern struct {
	re       *regexp.Regexp
	category model.Category
}

// Name characters match the sanitizer allow-list, so anything extracted here
// also passes sanitize.Identifier.
const serviceNameGroup = `['"]?([a-zA-Z0-9._-]+)(?:['"]|\s|,|$)`

// Order matters: the first matching pattern wins.
var servicePatterns = []servicePattern{
	{regexp.MustCompile(`(?i)cloud run service\s+` + serviceNameGroup), model.CategoryCloudRun},
	{regexp.MustCompile(`(?i)cloud build\s+(?:logs for\s+)?` + serviceNameGroup), model.CategoryCloudBuild},
	{regexp.MustCompile(`(?i)cloud function\s+` + serviceNameGroup), model.CategoryCloudFunctions},
	{regexp.MustCompile(`(?i)gce instance\s+` + serviceNameGroup), model.CategoryGCE},
	{regexp.MustCompile(`(?i)gke cluster\s+` + serviceNameGroup), model.CategoryGKE},
	{regexp.MustCompile(`(?i)app engine\s+` + serviceNameGroup), model.CategoryAppEngine},
}

var (
	repoURLPattern = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:github\.com|gitlab\.[a-z0-9.-]+)/[\w.-]+(?:/[\w.-]+)+`)

	windowCountPattern = regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d+)\s*(minutes?|mins?|hours?|hrs?|days?)\b`)
	windowUnitPattern  = regexp.MustCompile(`(?i)\b(?:last|past)\s+(minute|hour|day)\b`)
)

// Extract applies the rule-based extractors to an utterance.
func Extract(utterance string, now time.Time) Extraction {
	return Extraction{
		Service: ExtractService(utterance),
		RepoURL: ExtractRepoURL(utterance),
		Window:  ExtractWindow(utterance, now),
	}
}

func ExtractService(utterance string) *model.ServiceIdentity {
	for _, p := range servicePatterns {
		m := p.re.FindStringSubmatch(utterance)
		if m == nil {
			continue
		}
		return &model.ServiceIdentity{Name: m[1], Category: p.category}
	}
	return nil
}

func ExtractRepoURL(utterance string) string {
	url := repoURLPattern.FindString(utterance)
	return strings.TrimRight(url, ".")
}

// ExtractWindow reads "last 30 minutes", "past 2 hours", "last hour" or
// "past day" as a window ending at now. Longer ranges are capped at
// logquery.MaxWindow.
func ExtractWindow(utterance string, now time.Time) *logquery.Window {
	var d time.Duration
	if m := windowCountPattern.FindStringSubmatch(utterance); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil
		}
		unit := unitDuration(m[2])
		if n > int(logquery.MaxWindow/unit) {
			n = int(logquery.MaxWindow / unit)
		}
		d = time.Duration(n) * unit
	} else if m := windowUnitPattern.FindStringSubmatch(utterance); m != nil {
		d = unitDuration(m[1])
	} else {
		return nil
	}

	if d > logquery.MaxWindow {
		d = logquery.MaxWindow
	}
	w := logquery.Last(d, now)
	return &w
}

func unitDuration(unit string) time.Duration {
	u := strings.ToLower(unit)
	switch {
	case strings.HasPrefix(u, "min"):
		return time.Minute
	case strings.HasPrefix(u, "h"):
		return time.Hour
	default:
		return 24 * time.Hour
	}
}
