// Package markers extracts control signals that agents embed in free-form
// output as HTML comments:
//
//	<!-- STAGE_TRANSITION: code -->
//	<!-- AUDIT_RATING: 8 -->
//	<!-- AUDIT_VERDICT: ACCEPTED -->
//	<!-- FILES_CHANGED: a.go, b.go -->
//
// Rating and verdict fall back to prose matching when the marker is absent.
// Every function is pure and never fails; a missing or invalid signal is
// reported through the boolean result.
package markers

import (
	"regexp"
	"strconv"
	"strings"

	"taskflow/internal/task"
)

// Verdict is the audit stage's explicit decision.
type Verdict string

const (
	VerdictNone      Verdict = ""
	VerdictAccepted  Verdict = "ACCEPTED"
	VerdictNeedsWork Verdict = "NEEDS_WORK"
)

var (
	stageTransitionRe = regexp.MustCompile(`<!--\s*STAGE_TRANSITION:\s*([^\s>]+)\s*-->`)

	auditRatingRe = regexp.MustCompile(`<!--\s*AUDIT_RATING:\s*(\d+)(?:\s*/\s*10)?\s*-->`)
	// Prose fallbacks, tried in order: "Rating: 7/10" then "rating of 7".
	ratingOutOfTenRe = regexp.MustCompile(`(?i)\brating\b[^0-9\n]{0,20}?(\d+)\s*/\s*10\b`)
	ratingNumberRe   = regexp.MustCompile(`(?i)\brating\b[\s:=*_-]*(?:is|of)?[\s:=*_-]*(\d+)\b`)

	auditVerdictRe = regexp.MustCompile(`(?i)<!--\s*AUDIT_VERDICT:\s*(ACCEPTED|NEEDS_WORK)\s*-->`)
	verdictWordRe  = regexp.MustCompile(`(?i)\b(ACCEPTED|NEEDS_WORK)\b`)

	filesChangedRe = regexp.MustCompile(`(?s)<!--\s*FILES_CHANGED:(.*?)-->`)
)

// ParseStageTransition returns the stage named by a STAGE_TRANSITION marker.
// The value is case-folded and must be a known stage.
func ParseStageTransition(text string) (task.Stage, bool) {
	m := stageTransitionRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	stage, err := task.ParseStage(strings.ToLower(m[1]))
	if err != nil {
		return 0, false
	}
	return stage, true
}

// ParseAuditRating returns the audit rating. The explicit marker wins over
// prose; among prose forms "n/10" wins over a bare number.
func ParseAuditRating(text string) (int, bool) {
	for _, re := range []*regexp.Regexp{auditRatingRe, ratingOutOfTenRe, ratingNumberRe} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// ParseAuditVerdict returns the audit verdict. The explicit marker wins over
// a bare keyword anywhere in the text. Without a marker, any NEEDS_WORK
// keyword outweighs ACCEPTED.
func ParseAuditVerdict(text string) (Verdict, bool) {
	if m := auditVerdictRe.FindStringSubmatch(text); m != nil {
		return Verdict(strings.ToUpper(m[1])), true
	}
	found := VerdictNone
	for _, m := range verdictWordRe.FindAllStringSubmatch(text, -1) {
		found = Verdict(strings.ToUpper(m[1]))
		if found == VerdictNeedsWork {
			break
		}
	}
	return found, found != VerdictNone
}

// ParseFilesChanged returns the paths listed in a FILES_CHANGED marker,
// deduplicated in first-seen order.
func ParseFilesChanged(text string) ([]string, bool) {
	m := filesChangedRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	fields := strings.FieldsFunc(m[1], func(r rune) bool {
		return r == '\n' || r == ','
	})
	seen := make(map[string]bool, len(fields))
	files := make([]string, 0, len(fields))
	for _, f := range fields {
		f = cleanPath(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, false
	}
	return files, true
}

// cleanPath strips list bullets, surrounding backticks and whitespace.
func cleanPath(s string) string {
	s = strings.TrimSpace(s)
	for _, bullet := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(s, bullet) {
			s = strings.TrimSpace(s[len(bullet):])
			break
		}
	}
	s = strings.Trim(s, "`")
	return strings.TrimSpace(s)
}

// Result bundles every signal found in one output.
type Result struct {
	Transition   *task.Stage
	Rating       *int
	Verdict      Verdict
	FilesChanged []string
}

// Parse extracts all markers from text. Rating and verdict are only looked
// for when includeAudit is set, because prose such as "accepted" is common
// in planning and coding output.
func Parse(text string, includeAudit bool) Result {
	var r Result
	if stage, ok := ParseStageTransition(text); ok {
		r.Transition = &stage
	}
	if includeAudit {
		if n, ok := ParseAuditRating(text); ok {
			r.Rating = &n
		}
		if v, ok := ParseAuditVerdict(text); ok {
			r.Verdict = v
		}
	}
	if files, ok := ParseFilesChanged(text); ok {
		r.FilesChanged = files
	}
	return r
}
