package browsertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage_FramesAndClicks(t *testing.T) {
	ctx := context.Background()
	p := New().Add("https://maps.test/search/a", &Screen{
		Title: "results",
		Frames: []string{
			`<div role="feed"><a class="x">one</a></div><button id="more">More</button>`,
			`<div role="feed"><a class="x">one</a><a class="x">two</a></div>`,
			`<div role="feed"><a class="x">three</a></div>`,
		},
		OnClick: map[string]int{"#more": 2},
	})

	require.NoError(t, p.Navigate(ctx, "https://maps.test/search/a?hl=en-US"))
	assert.Equal(t, 1, p.VisitCount("https://maps.test/search/a"))

	ok, err := p.Exists(ctx, `div[role="feed"]`)
	require.NoError(t, err)
	assert.True(t, ok)

	html, ok, err := p.OuterHTML(ctx, `div[role="feed"]`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, html, "one")

	scrolled, err := p.ScrollBy(ctx, `div[role="feed"]`, 100)
	require.NoError(t, err)
	assert.True(t, scrolled)
	n, err := p.ClickAll(ctx, "a.x")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	clicked, err := p.Click(ctx, "#more")
	require.NoError(t, err)
	assert.False(t, clicked, "frame 1 has no button")

	title, _ := p.Title(ctx)
	assert.Equal(t, "results", title)

	_, ok, err = p.OuterHTML(ctx, "table")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPage_Fail(t *testing.T) {
	ctx := context.Background()
	p := New().Add("https://maps.test/place/x", &Screen{Frames: []string{"<p>x</p>"}}).Fail("https://maps.test/place/x", 1)

	assert.Error(t, p.Navigate(ctx, "https://maps.test/place/x"))
	assert.NoError(t, p.Navigate(ctx, "https://maps.test/place/x"))
	assert.Error(t, p.Navigate(ctx, "https://maps.test/unknown"))
}
