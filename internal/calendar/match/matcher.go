// Package match associates free-text calendar event titles with trainees
// from the roster, using name extraction plus fuzzy similarity scoring.
package match

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/coachcal/coachcal/internal/trainees"
)

// DefaultMinScore is the minimum similarity for a trainee to be offered
// as a match candidate at all.
const DefaultMinScore = 60

type Type string

const (
	TypeExact   Type = "exact"
	TypeClose   Type = "close"
	TypePartial Type = "partial"
)

type Status string

const (
	// StatusMatched - exactly one exact match, safe to auto-link
	StatusMatched Status = "matched"
	// StatusPending - candidates exist but need user confirmation
	StatusPending Status = "pending"
	// StatusNew - a name was extracted but nobody on the roster fits
	StatusNew Status = "new"
	// StatusUnmatched - no name could be extracted from the title
	StatusUnmatched Status = "unmatched"
)

type Result struct {
	Trainee trainees.Trainee `json:"trainee"`
	Score   int              `json:"score"`
	Type    Type             `json:"matchType"`
}

// EventInfo is the slice of a remote event the matcher needs.
type EventInfo struct {
	ID      string    `json:"id"`
	Summary string    `json:"summary"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

type EventMatch struct {
	Event             EventInfo `json:"event"`
	ExtractedName     string    `json:"extractedName,omitempty"`
	Matches           []Result  `json:"matches"`
	Status            Status    `json:"status"`
	SelectedTraineeID int       `json:"selectedTraineeId,omitempty"`
}

var (
	// titles like "אימון - שם", "שם - אימון", "אימון עם שם"
	prefixSeparatorRe = regexp.MustCompile(`^(?:אימון|פגישה|טיפול|מפגש)\s*[-–:]\s*(.+)$`)
	separatorSuffixRe = regexp.MustCompile(`^(.+?)\s*[-–:]\s*(?:אימון|פגישה|טיפול|מפגש)$`)
	prefixConnectorRe = regexp.MustCompile(`^(?:אימון|פגישה|טיפול|מפגש)\s+(?:עם|ל)\s+(.+)$`)
	leadingPrefixRe   = regexp.MustCompile(`^(?:אימון|פגישה|טיפול|מפגש)\s*[-–:]\s*`)
	whitespaceRe      = regexp.MustCompile(`\s+`)
)

// titles that carry no trainee name at all
var genericWords = map[string]bool{
	"אימון": true,
	"פגישה": true,
	"טיפול": true,
	"מפגש":  true,
	"הפסקה": true,
	"פנוי":  true,
	"תפוס":  true,
}

type Matcher struct {
	minScore int
}

func NewMatcher() *Matcher {
	return &Matcher{minScore: DefaultMinScore}
}

func NewMatcherWithMinScore(minScore int) *Matcher {
	return &Matcher{minScore: minScore}
}

// NormalizeName lowercases, collapses whitespace and strips a leading
// generic prefix ("אימון - ") off a name.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = whitespaceRe.ReplaceAllString(n, " ")
	n = leadingPrefixRe.ReplaceAllString(n, "")
	return strings.TrimSpace(n)
}

// ExtractName pulls the candidate trainee name out of an event title.
// Returns false when the title is empty or a generic word with no name in it.
func ExtractName(summary string) (string, bool) {
	trimmed := strings.TrimSpace(summary)
	if trimmed == "" {
		return "", false
	}

	if m := prefixSeparatorRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := separatorSuffixRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := prefixConnectorRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1]), true
	}

	if genericWords[strings.ToLower(trimmed)] {
		return "", false
	}
	if len([]rune(trimmed)) > 1 {
		return trimmed, true
	}

	return "", false
}

// Similarity scores two names 0-100:
// exact match after normalization, containment, matching name parts,
// then Levenshtein distance as the last resort.
func Similarity(name1, name2 string) int {
	n1 := NormalizeName(name1)
	n2 := NormalizeName(name2)

	if n1 == n2 {
		return 100
	}

	r1, r2 := []rune(n1), []rune(n2)

	if strings.Contains(n1, n2) || strings.Contains(n2, n1) {
		shorter, longer := len(r1), len(r2)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return int(math.Round(85*float64(shorter)/float64(longer) + 10))
	}

	parts1 := nameParts(n1)
	parts2 := nameParts(n2)
	matching := 0
	for _, p1 := range parts1 {
		for _, p2 := range parts2 {
			if p1 == p2 {
				matching++
				break
			}
		}
	}
	if matching > 0 {
		totalParts := len(parts1)
		if len(parts2) > totalParts {
			totalParts = len(parts2)
		}
		return int(math.Round(70 + 30*float64(matching)/float64(totalParts)))
	}

	maxLen := len(r1)
	if len(r2) > maxLen {
		maxLen = len(r2)
	}
	if maxLen == 0 {
		return 0
	}

	distance := levenshtein(r1, r2)
	similarity := int(math.Round((1 - float64(distance)/float64(maxLen)) * 100))
	if similarity < 0 {
		return 0
	}
	return similarity
}

func nameParts(name string) []string {
	var parts []string
	for _, p := range strings.Split(name, " ") {
		if len([]rune(p)) > 1 {
			parts = append(parts, p)
		}
	}
	return parts
}

func levenshtein(a, b []rune) int {
	m, n := len(a), len(b)

	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
			} else {
				curr[j] = 1 + min3(prev[j], curr[j-1], prev[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[n]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// firstNameMatches checks the first tokens only, calendars very often
// carry just a first name.
func firstNameMatches(eventName, traineeName string) bool {
	eventFirst := firstToken(NormalizeName(eventName))
	traineeFirst := firstToken(NormalizeName(traineeName))

	if eventFirst == traineeFirst {
		return true
	}

	if len([]rune(eventFirst)) >= 2 && len([]rune(traineeFirst)) >= 2 {
		if strings.HasPrefix(traineeFirst, eventFirst) || strings.HasPrefix(eventFirst, traineeFirst) {
			return true
		}
	}

	return false
}

func firstToken(s string) string {
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		return s[:idx]
	}
	return s
}

// FindBestMatches scores the whole roster against an extracted name and
// returns candidates above the min score, best first. Equal scores order
// alphabetically by trainee name, to keep the ranking deterministic.
func (m *Matcher) FindBestMatches(eventName string, roster []trainees.Trainee) []Result {
	var matches []Result

	for _, trainee := range roster {
		bestScore := Similarity(eventName, trainee.FullName)
		matchType := TypePartial

		if firstNameMatches(eventName, trainee.FullName) {
			if bestScore < 90 {
				bestScore = 90
			}
			matchType = TypeClose
		}

		// paired trainees match on either sub-name too
		if trainee.IsPair {
			for _, pairName := range []string{trainee.PairName1, trainee.PairName2} {
				if pairName == "" {
					continue
				}
				if score := Similarity(eventName, pairName); score > bestScore {
					bestScore = score
				}
				if firstNameMatches(eventName, pairName) {
					if bestScore < 90 {
						bestScore = 90
					}
					matchType = TypeClose
				}
			}
		}

		if bestScore == 100 {
			matchType = TypeExact
		} else if bestScore >= 80 {
			matchType = TypeClose
		}

		if bestScore >= m.minScore {
			matches = append(matches, Result{
				Trainee: trainee,
				Score:   bestScore,
				Type:    matchType,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Trainee.FullName < matches[j].Trainee.FullName
	})

	return matches
}

// MatchEvents classifies a batch of remote events against the roster.
func (m *Matcher) MatchEvents(events []EventInfo, roster []trainees.Trainee) []EventMatch {
	results := make([]EventMatch, 0, len(events))

	for _, event := range events {
		extractedName, ok := ExtractName(event.Summary)
		if !ok {
			results = append(results, EventMatch{
				Event:   event,
				Matches: []Result{},
				Status:  StatusUnmatched,
			})
			continue
		}

		matches := m.FindBestMatches(extractedName, roster)

		switch {
		case len(matches) == 0:
			results = append(results, EventMatch{
				Event:         event,
				ExtractedName: extractedName,
				Matches:       []Result{},
				Status:        StatusNew,
			})
		case len(matches) == 1 && matches[0].Type == TypeExact:
			results = append(results, EventMatch{
				Event:             event,
				ExtractedName:     extractedName,
				Matches:           matches,
				Status:            StatusMatched,
				SelectedTraineeID: matches[0].Trainee.ID,
			})
		default:
			results = append(results, EventMatch{
				Event:         event,
				ExtractedName: extractedName,
				Matches:       matches,
				Status:        StatusPending,
			})
		}
	}

	return results
}
