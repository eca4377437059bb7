package collector

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxSummaryLength    = 500
	maxSummarySentences = 5
	maxParagraphLines   = 10
)

// ReadmeSummary is the synopsis extracted from a repository readme.
type ReadmeSummary struct {
	Summary          string `json:"summary" yaml:"summary"`
	Length           int    `json:"length" yaml:"length"`
	PrimaryLanguage  string `json:"primary_language" yaml:"primary_language"`
	PrimaryFramework string `json:"primary_framework" yaml:"primary_framework"`
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

// Tables are ordered; on equal scores the earlier entry wins.
var languagePatterns = []namedPattern{
	{"Python", regexp.MustCompile(`(?i)\b(Python|python|\.py)\b`)},
	{"JavaScript", regexp.MustCompile(`(?i)\b(JavaScript|javascript|JS|js|\.js)\b`)},
	{"TypeScript", regexp.MustCompile(`(?i)\b(TypeScript|typescript|TS|ts|\.ts)\b`)},
	{"Java", regexp.MustCompile(`(?i)\b(Java|java|\.java)\b`)},
	{"Go", regexp.MustCompile(`(?i)\b(Go|Golang|golang|go)\b`)},
	{"Rust", regexp.MustCompile(`(?i)\b(Rust|rust|\.rs)\b`)},
	{"Ruby", regexp.MustCompile(`(?i)\b(Ruby|ruby|\.rb)\b`)},
	{"PHP", regexp.MustCompile(`(?i)\b(PHP|php|\.php)\b`)},
	{"C#", regexp.MustCompile(`(?i)\b(C#|csharp|CSharp|\.cs)\b`)},
	{"C++", regexp.MustCompile(`(?i)\b(C\+\+|cpp|CPP|\.cpp)\b`)},
}

var frameworkPatterns = []namedPattern{
	{"React", regexp.MustCompile(`\b(React|ReactJS|react)\b`)},
	{"Vue", regexp.MustCompile(`\b(Vue|VueJS|vue)\b`)},
	{"Angular", regexp.MustCompile(`\b(Angular|angular)\b`)},
	{"Next.js", regexp.MustCompile(`\b(Next\.js|NextJS|next)\b`)},
	{"Express", regexp.MustCompile(`\b(Express|ExpressJS|express)\b`)},
	{"Node.js", regexp.MustCompile(`\b(Node\.js|NodeJS|node)\b`)},
	{"Django", regexp.MustCompile(`\b(Django|django)\b`)},
	{"Flask", regexp.MustCompile(`\b(Flask|flask)\b`)},
	{"FastAPI", regexp.MustCompile(`\b(FastAPI|fastapi)\b`)},
	{"Pandas", regexp.MustCompile(`\b(Pandas|pandas)\b`)},
	{"PyTorch", regexp.MustCompile(`\b(PyTorch|pytorch)\b`)},
	{"TensorFlow", regexp.MustCompile(`\b(TensorFlow|tensorflow)\b`)},
	{"Spring", regexp.MustCompile(`\b(Spring|SpringBoot|spring-boot)\b`)},
	{"Hibernate", regexp.MustCompile(`\b(Hibernate|hibernate)\b`)},
	{"Gin", regexp.MustCompile(`\b(Gin|gin-gonic)\b`)},
	{"Echo", regexp.MustCompile(`\b(Echo|echo)\b`)},
	{"Rails", regexp.MustCompile(`\b(Rails|Ruby on Rails|rails)\b`)},
	{"Sinatra", regexp.MustCompile(`\b(Sinatra|sinatra)\b`)},
	{"Laravel", regexp.MustCompile(`\b(Laravel|laravel)\b`)},
	{"Symfony", regexp.MustCompile(`\b(Symfony|symfony)\b`)},
	{"Actix", regexp.MustCompile(`\b(Actix|actix-web)\b`)},
	{"Rocket", regexp.MustCompile(`\b(Rocket|rocket)\b`)},
	{"Docker", regexp.MustCompile(`\b(Docker|docker)\b`)},
	{"Kubernetes", regexp.MustCompile(`\b(Kubernetes|K8s|k8s)\b`)},
	{"Terraform", regexp.MustCompile(`\b(Terraform|terraform)\b`)},
}

var (
	badgeImage     = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	badgeLink      = regexp.MustCompile(`\[!\[.*?\].*?\]`)
	htmlComment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	aboutHeading   = regexp.MustCompile(`(?i)##?\s*(About|Overview|What is|Description)\s*\n+`)
	codeBlock      = regexp.MustCompile("(?s)```.*?```")
	inlineCode     = regexp.MustCompile("`[^`]+`")
	markdownLink   = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	emphasis       = regexp.MustCompile(`[*_]{1,2}([^*_]+)[*_]{1,2}`)
	whitespace     = regexp.MustCompile(`\s+`)
	sentenceBreaks = regexp.MustCompile(`[.!?]\s+`)
)

// SummarizeReadme extracts a bounded synopsis and the most prominent language and framework.
func SummarizeReadme(content string) ReadmeSummary {
	if content == "" {
		return ReadmeSummary{}
	}
	return ReadmeSummary{
		Summary:          summarize(content),
		Length:           utf8.RuneCountInString(content),
		PrimaryLanguage:  detect(content, languagePatterns, true),
		PrimaryFramework: detect(content, frameworkPatterns, false),
	}
}

func summarize(content string) string {
	content = badgeImage.ReplaceAllString(content, "")
	content = badgeLink.ReplaceAllString(content, "")
	content = htmlComment.ReplaceAllString(content, "")

	var text string
	if loc := aboutHeading.FindStringIndex(content); loc != nil {
		body := content[loc[1]:]
		if end := strings.Index(body, "\n##"); end >= 0 {
			body = body[:end]
		}
		text = strings.TrimSpace(body)
	} else {
		text = firstParagraph(content)
	}
	text = cleanMarkdown(text)

	var sentences []string
	length := 0
	for i, sentence := range sentenceBreaks.Split(text, -1) {
		if i >= maxSummarySentences {
			break
		}
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		n := utf8.RuneCountInString(sentence) + 2
		if length+n > maxSummaryLength {
			break
		}
		sentences = append(sentences, sentence)
		length += n
	}

	summary := strings.Join(sentences, ". ")
	if summary != "" && !strings.HasSuffix(summary, ".") {
		summary += "."
	}
	if utf8.RuneCountInString(summary) > maxSummaryLength {
		summary = string([]rune(summary)[:maxSummaryLength])
	}
	return strings.TrimSpace(summary)
}

// firstParagraph joins up to ten non-heading lines starting at the first line with content.
func firstParagraph(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) >= maxParagraphLines {
			break
		}
	}
	return strings.Join(lines, " ")
}

func cleanMarkdown(text string) string {
	text = codeBlock.ReplaceAllString(text, "")
	text = inlineCode.ReplaceAllString(text, "")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = emphasis.ReplaceAllString(text, "$1")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// detect scores every pattern by its match count weighted by how early it first appears.
func detect(content string, patterns []namedPattern, foldCase bool) string {
	haystack := content
	if foldCase {
		haystack = strings.ToLower(content)
	}
	best, bestScore := "", 0.0
	for _, p := range patterns {
		matches := p.re.FindAllString(content, -1)
		if len(matches) == 0 {
			continue
		}
		needle := matches[0]
		if foldCase {
			needle = strings.ToLower(needle)
		}
		pos := strings.Index(haystack, needle)
		if pos > 1000 {
			pos = 1000
		}
		score := float64(len(matches)) * (1000 - float64(pos)/1000)
		if score > bestScore {
			best, bestScore = p.name, score
		}
	}
	return best
}
