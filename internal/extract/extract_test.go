package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLs_BareLinks(t *testing.T) {
	urls := URLs("check this https://twitter.com/u/status/123 and https://bsky.app/profile/a/post/b")

	require.Len(t, urls, 2)
	assert.Equal(t, "https://twitter.com/u/status/123", urls[0].Raw)
	assert.False(t, urls[0].Spoiler)
	assert.Equal(t, "https://bsky.app/profile/a/post/b", urls[1].Raw)
}

func TestURLs_SpoileredFirst(t *testing.T) {
	urls := URLs("https://a.com/1 ||https://b.com/2|| trailing")

	require.Len(t, urls, 2)
	assert.Equal(t, "https://b.com/2", urls[0].Raw, "spoilered URLs are extracted first")
	assert.True(t, urls[0].Spoiler)
	assert.Equal(t, "https://a.com/1", urls[1].Raw)
	assert.False(t, urls[1].Spoiler)
}

func TestURLs_EscapedAndNoEmbed(t *testing.T) {
	urls := URLs("$https://skip.me <https://also.skip> https://keep.me/x")

	require.Len(t, urls, 1)
	assert.Equal(t, "https://keep.me/x", urls[0].Raw)
}

func TestURLs_MalformedTextIsTotal(t *testing.T) {
	assert.Empty(t, URLs(""))
	assert.Empty(t, URLs("|| || < > $ https:// nothing here"))
	assert.NotPanics(t, func() { URLs("||https://half.spoiler") })
}

func TestURLs_OrderPreserved(t *testing.T) {
	urls := URLs("https://one.com https://two.com https://three.com")

	require.Len(t, urls, 3)
	assert.Equal(t, "https://one.com", urls[0].Raw)
	assert.Equal(t, "https://two.com", urls[1].Raw)
	assert.Equal(t, "https://three.com", urls[2].Raw)
}
