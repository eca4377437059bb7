package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PDVD_TEST_INT", "42")
	t.Setenv("PDVD_TEST_BAD_INT", "forty")
	t.Setenv("PDVD_TEST_FLOAT", " 0.25 ")
	t.Setenv("PDVD_TEST_BOOL", "false")
	t.Setenv("PDVD_TEST_DURATION", "90m")

	assert.Equal(t, 42, GetEnvInt("PDVD_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("PDVD_TEST_BAD_INT", 1))
	assert.Equal(t, 7, GetEnvInt("PDVD_TEST_UNSET", 7))
	assert.Equal(t, 0.25, GetEnvFloat("PDVD_TEST_FLOAT", 0))
	assert.False(t, GetEnvBool("PDVD_TEST_BOOL", true))
	assert.Equal(t, 90*time.Minute, GetEnvDuration("PDVD_TEST_DURATION", time.Hour))
	assert.Equal(t, "fallback", GetEnvDefault("PDVD_TEST_UNSET", "fallback"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b,"))
	assert.Nil(t, SplitList(""))
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "acme-api-v2", SanitizeKey(" acme/api (v2) "))
}

func TestParseName(t *testing.T) {
	assert.Equal(t, NameComponents{Owner: "acme", Shortname: "api"}, ParseName("Acme/api"))
	assert.Equal(t, NameComponents{Shortname: "api"}, ParseName("api"))
}

func TestCVSSScore(t *testing.T) {
	assert.InDelta(t, 9.8, CalculateCVSSScore("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"), 0.001)
	assert.Zero(t, CalculateCVSSScore("AV:N/AC:L"))
	assert.Zero(t, CalculateCVSSScore("CVSS:3.1/garbage"))

	score := ResolveCVSSScore("", 5.3)
	require.NotNil(t, score)
	assert.Equal(t, 5.3, *score)
	assert.Nil(t, ResolveCVSSScore("", 0))

	assert.Equal(t, "CRITICAL", GetSeverityRating(9.8))
	assert.Equal(t, "MEDIUM", GetSeverityRating(5.3))
	assert.Equal(t, "NONE", GetSeverityRating(0))
}

func TestBuildPURL(t *testing.T) {
	assert.Equal(t, "pkg:npm/lodash@4.17.11", BuildPURL("NPM", "lodash", "4.17.11"))
	assert.Equal(t, "pkg:pypi/django@3.2.0", BuildPURL("pip", "django", "3.2.0"))
	assert.Equal(t, "pkg:maven/org.apache.commons/commons-text@1.9", BuildPURL("maven", "org.apache.commons:commons-text", "1.9"))
	assert.Equal(t, "pkg:golang/golang.org/x/net@0.7.0", BuildPURL("go", "golang.org/x/net", "0.7.0"))
	assert.Empty(t, BuildPURL("npm", "", "1.0.0"))
}

func TestVersionFromRequirement(t *testing.T) {
	assert.Equal(t, "4.17.11", VersionFromRequirement("= 4.17.11"))
	assert.Equal(t, "2.1", VersionFromRequirement("~> 2.1"))
	assert.Equal(t, "1.0.0", VersionFromRequirement(">=1.0.0"))
	assert.Empty(t, VersionFromRequirement(">= 1.0, < 2.0"))
	assert.Empty(t, VersionFromRequirement(""))
}

func TestUpgradeKind(t *testing.T) {
	assert.Equal(t, "patch", UpgradeKind("npm", "4.17.11", "4.17.21"))
	assert.Equal(t, "major", UpgradeKind("pip", "1.2.0", "2.0.0"))
	assert.Equal(t, "minor", UpgradeKind("go", "v1.2.3", "v1.3.0"))
	assert.Empty(t, UpgradeKind("npm", "2.0.0", "1.0.0"))
	assert.Empty(t, UpgradeKind("npm", "not-a-version", "1.0.0"))

	_, ok := CompareVersions("rubygems", "1.0", "garbage!")
	assert.False(t, ok)
}
