// Package readme rewrites the stats parts of a profile README:
// shields.io badge values and a generated markdown section.
package readme

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/naka-gawa/github-profile-stats/internal/snapshot"
)

// Badge labels updated by BadgeValues.
const (
	LabelRepos   = "Total_Repos"
	LabelCommits = "Total_Commits"
	LabelLines   = "Lines_of_Code"
	LabelStars   = "Total_Stars"
)

// Patch replaces the value of every "Label-VALUE" badge token whose label is in updates.
// A label must start the document or follow a non-word character; the value runs up to
// the next '-', whitespace, quote or bracket.
// It returns the new document and the sorted labels that matched at least once.
// A document without any matching token is returned unchanged.
func Patch(doc string, updates map[string]string) (string, []string) {
	if len(updates) == 0 {
		return doc, []string{}
	}

	labels := make([]string, 0, len(updates))
	for label := range updates {
		labels = append(labels, label)
	}
	// Longer labels first so that a label never shadows a longer one sharing its prefix.
	sort.Slice(labels, func(i, j int) bool {
		if len(labels[i]) != len(labels[j]) {
			return len(labels[i]) > len(labels[j])
		}
		return labels[i] < labels[j]
	})
	quoted := make([]string, len(labels))
	for i, label := range labels {
		quoted[i] = regexp.QuoteMeta(label)
	}
	re := regexp.MustCompile(`(^|[^A-Za-z0-9_])(` + strings.Join(quoted, "|") + `)-([^-\s"'()\[\]]+)`)

	seen := map[string]bool{}
	out := re.ReplaceAllStringFunc(doc, func(match string) string {
		groups := re.FindStringSubmatch(match)
		prefix, label := groups[1], groups[2]
		seen[label] = true
		return prefix + label + "-" + updates[label]
	})

	matched := make([]string, 0, len(seen))
	for label := range seen {
		matched = append(matched, label)
	}
	sort.Strings(matched)
	return out, matched
}

// PatchFile applies Patch to the file at path. The file is rewritten only if a label
// matched and the content changed. Matched labels are returned either way.
func PatchFile(path string, updates map[string]string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	out, matched := Patch(string(data), updates)
	if len(matched) == 0 || out == string(data) {
		return matched, nil
	}
	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return matched, nil
}

// BadgeValues returns the shields.io escaped badge values of a snapshot.
// Estimated commit counts carry a trailing "+".
func BadgeValues(s snapshot.Snapshot) map[string]string {
	commits, estimated := s.Commits()
	commitsValue := strconv.FormatInt(commits, 10)
	if estimated {
		commitsValue += "+"
	}

	return map[string]string{
		LabelRepos:   EscapeShields(strconv.Itoa(s.TotalRepos)),
		LabelCommits: EscapeShields(commitsValue),
		LabelLines:   EscapeShields(s.FormattedLines),
		LabelStars:   EscapeShields(strconv.Itoa(s.TotalStars)),
	}
}

var shieldsReplacer = strings.NewReplacer(
	"-", "--",
	"_", "__",
	" ", "_",
	"+", "%2B",
)

// EscapeShields escapes text for a static shields.io badge path segment.
func EscapeShields(s string) string {
	return shieldsReplacer.Replace(s)
}
