package readme

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/naka-gawa/github-profile-stats/internal/domain"
	"github.com/naka-gawa/github-profile-stats/internal/humanfmt"
)

// Default markers delimiting the generated section.
const (
	DefaultStartMarker = "## 📊 Real-Time GitHub Statistics"
	DefaultEndMarker   = "## 📈 Coding Activity"
)

const (
	maxLanguageBadges = 8
	defaultColor      = "000000"
)

var languageColors = map[string]string{
	"Python":           "3776AB",
	"JavaScript":       "F7DF1E",
	"TypeScript":       "3178C6",
	"HTML":             "E34F26",
	"CSS":              "1572B6",
	"Java":             "007396",
	"Go":               "00ADD8",
	"PHP":              "777BB4",
	"Dockerfile":       "2496ED",
	"Shell":            "89E051",
	"Jupyter Notebook": "F37626",
	"Mustache":         "FF6347",
}

// SectionData is everything shown in the generated section.
type SectionData struct {
	Profile          domain.Profile
	TotalRepos       int
	PublicRepos      int
	PrivateRepos     int
	PrimaryLanguages []domain.LanguageCount
	TopRepositories  []domain.RepositoryStars
	UpdatedAt        time.Time
}

var sectionTemplate = template.Must(template.New("section").Funcs(template.FuncMap{
	"badge":    languageBadge,
	"repoName": repoName,
	"orNA":     orNA,
	"count":    func(n int) string { return humanfmt.Count(int64(n)) },
	"updated":  func(t time.Time) string { return t.UTC().Format("January 02, 2006 at 15:04 UTC") },
}).Parse(`{{.Start}}

<div align="center">

### 📈 Profile Overview

| 📦 Total Repositories | 🔓 Public | 🔒 Private | 👥 Followers | 👤 Following |
|:---:|:---:|:---:|:---:|:---:|
| **{{.Data.TotalRepos}}** | {{.Data.PublicRepos}} | {{.Data.PrivateRepos}} | **{{.Data.Profile.Followers}}** | {{.Data.Profile.Following}} |

</div>

### 💻 Top Programming Languages

{{range .Languages}}  - {{badge .Name}} ` + "`{{.Repos}} repos`" + `
{{end}}
### 🌟 Featured Repositories

{{range .Data.TopRepositories}}  - ⭐ **[{{repoName .ID}}]({{.URL}})** - {{count .Stars}} stars | {{orNA .Language}}
{{else}}  - Building amazing projects! 🚀
{{end}}
<div align="center">
  <sub>📅 Last Updated: {{updated .Data.UpdatedAt}}</sub>
</div>
`))

// RenderSection renders the markdown stats section, starting with DefaultStartMarker.
func RenderSection(data SectionData) (string, error) {
	return RenderSectionWithMarker(DefaultStartMarker, data)
}

// RenderSectionWithMarker renders the section under a custom heading.
func RenderSectionWithMarker(start string, data SectionData) (string, error) {
	languages := data.PrimaryLanguages
	if len(languages) > maxLanguageBadges {
		languages = languages[:maxLanguageBadges]
	}

	var buf bytes.Buffer
	err := sectionTemplate.Execute(&buf, struct {
		Start     string
		Data      SectionData
		Languages []domain.LanguageCount
	}{start, data, languages})
	if err != nil {
		return "", fmt.Errorf("failed to render stats section: %w", err)
	}
	return buf.String(), nil
}

// ReplaceSection replaces everything from start up to (not including) end with section.
// If either marker is missing, or end precedes start, section is appended instead and
// found is false.
func ReplaceSection(doc, start, end, section string) (out string, found bool) {
	startIdx := strings.Index(doc, start)
	endIdx := -1
	if startIdx >= 0 {
		if i := strings.Index(doc[startIdx:], end); i >= 0 {
			endIdx = startIdx + i
		}
	}
	if startIdx < 0 || endIdx < 0 {
		return doc + "\n\n" + section, false
	}
	return doc[:startIdx] + section + "\n---\n\n" + doc[endIdx:], true
}

// ReplaceSectionFile applies ReplaceSection to the file at path.
func ReplaceSectionFile(path, start, end, section string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	out, found := ReplaceSection(string(data), start, end, section)
	if out == string(data) {
		return found, nil
	}
	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return found, nil
}

func languageBadge(lang string) string {
	color, ok := languageColors[lang]
	if !ok {
		color = defaultColor
	}
	logo := strings.ReplaceAll(strings.ToLower(lang), " ", "-")
	return fmt.Sprintf("![%s](https://img.shields.io/badge/-%s-%s?style=flat-square&logo=%s&logoColor=white)",
		lang, EscapeShields(lang), color, logo)
}

func repoName(id domain.RepositoryID) string {
	if _, name, err := id.Split(); err == nil {
		return name
	}
	return string(id)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
