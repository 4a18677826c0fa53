package tagindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := &Config{Root: "/tmp/diaries", Dimension: 8}
	cfg.ApplyDefaults()
	return cfg
}

func TestExtractTags(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "ascii commas",
			content: "hello world\nTag: cat, dog",
			want:    []string{"cat", "dog"},
		},
		{
			name:    "mixed delimiters",
			content: "正文\nTag: 猫，狗、鸟",
			want:    []string{"猫", "狗", "鸟"},
		},
		{
			name:    "case insensitive prefix",
			content: "x\ntag: one",
			want:    []string{"one"},
		},
		{
			name:    "no tag line",
			content: "just some text\nwithout tags",
			want:    []string{},
		},
		{
			name:    "deduplicated",
			content: "x\nTag: cat, cat, dog",
			want:    []string{"cat", "dog"},
		},
		{
			name:    "purely numeric dropped",
			content: "x\nTag: 123, cat",
			want:    []string{"cat"},
		},
		{
			name:    "trailing blank lines ignored",
			content: "x\nTag: cat\n\n  \n",
			want:    []string{"cat"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTags(tt.content, cfg))
		})
	}
}

func TestExtractTagsSuperBlacklist(t *testing.T) {
	cfg := testConfig()
	cfg.TagBlacklistSuper = []string{"废弃"}

	got := ExtractTags("x\nTag: 废弃猫, 狗废弃, 废弃", cfg)
	assert.Equal(t, []string{"猫", "狗"}, got)
}

func TestExtractTagsExactBlacklist(t *testing.T) {
	cfg := testConfig()
	cfg.TagBlacklist = []string{"dog"}

	got := ExtractTags("x\nTag: cat, dog", cfg)
	assert.Equal(t, []string{"cat"}, got)
}

func TestExtractTagsLengthBounds(t *testing.T) {
	cfg := testConfig()
	cfg.TagMinLength = 2
	cfg.TagMaxLength = 3

	got := ExtractTags("x\nTag: a, ab, abc, abcd", cfg)
	assert.Equal(t, []string{"ab", "abc"}, got)
}

func TestParseDateHeader(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	ts, ok := ParseDateHeader("[2025-03-10] 今天很好\nTag: cat", loc)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, loc), ts)

	ts, ok = ParseDateHeader("2025.02.20 记录\n正文", loc)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 2, 20, 0, 0, 0, 0, loc), ts)

	_, ok = ParseDateHeader("没有日期\n正文", loc)
	assert.False(t, ok)
}

func TestShouldIgnoreFolder(t *testing.T) {
	cfg := testConfig()
	cfg.IgnoreFolders = []string{"archive"}
	cfg.IgnorePrefix = []string{"_"}
	cfg.IgnoreSuffix = []string{".bak"}

	assert.True(t, ShouldIgnoreFolder("archive", cfg))
	assert.True(t, ShouldIgnoreFolder("_draft", cfg))
	assert.True(t, ShouldIgnoreFolder("old.bak", cfg))
	assert.False(t, ShouldIgnoreFolder("cats", cfg))
}
