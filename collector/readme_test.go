package collector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeReadmeEmpty(t *testing.T) {
	assert.Equal(t, ReadmeSummary{}, SummarizeReadme(""))
}

func TestSummarizeReadmeAboutSection(t *testing.T) {
	content := "# widget\n\n![build](https://img/badge.svg)\n\n## About\n\n" +
		"Widget is a **fast** service written in Go. It exposes a [REST](https://x) API!\n\n" +
		"## Install\n\nRun it.\n"

	s := SummarizeReadme(content)

	assert.Equal(t, "Widget is a fast service written in Go. It exposes a REST API!.", s.Summary)
	assert.Equal(t, len([]rune(content)), s.Length)
	assert.Equal(t, "Go", s.PrimaryLanguage)
}

func TestSummarizeReadmeFirstParagraph(t *testing.T) {
	content := "# tool\n<!-- hidden -->\nA small CLI. Built with Django and django helpers.\n"

	s := SummarizeReadme(content)

	assert.Equal(t, "A small CLI. Built with Django and django helpers.", s.Summary)
	assert.Equal(t, "Django", s.PrimaryFramework)
}

func TestSummarizeReadmeBounded(t *testing.T) {
	sentence := strings.Repeat("word ", 30) + "end. "
	s := SummarizeReadme(strings.Repeat(sentence, 10))

	assert.LessOrEqual(t, len([]rune(s.Summary)), 500)
	assert.LessOrEqual(t, strings.Count(s.Summary, "end"), 5)
}

func TestDetectWeighsFirstPosition(t *testing.T) {
	assert.Equal(t, "Python", detect("python and rust", languagePatterns, true))
	assert.Equal(t, "", detect("nothing here", frameworkPatterns, false))
}
