package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/pixellens/internal/classifier"
	"github.com/v0xg/pixellens/internal/pixel"
	"github.com/v0xg/pixellens/internal/signature"
)

func TestClassify(t *testing.T) {
	c := classifier.New(signature.Default())

	cases := []struct {
		name string
		req  pixel.Request
		want string
	}{
		{"ga4", pixel.Request{URL: "https://www.google-analytics.com/g/collect?v=2&tid=G-1&en=page_view"}, "GA4 page_view"},
		{"facebook form body", pixel.Request{
			URL: "https://www.facebook.com/tr/", Method: "POST", Body: "id=123&ev=AddToCart&dl=https%3A%2F%2Fshop",
		}, "Facebook AddToCart"},
		{"url query beats body", pixel.Request{
			URL: "https://www.facebook.com/tr?id=1&ev=Purchase", Method: "POST", Body: "ev=Lead",
		}, "Facebook Purchase"},
		{"json body is not a form", pixel.Request{
			URL: "https://analytics.tiktok.com/api/v2/pixel", Method: "POST", Body: `{"event":"AddToCart"}`,
		}, "TikTok AddToCart"},
		{"first party", pixel.Request{URL: "https://shop.example.com/api/cart"}, ""},
		{"empty url", pixel.Request{URL: ""}, ""},
		{"relative url", pixel.Request{URL: "/g/collect?en=page_view"}, ""},
		{"garbage", pixel.Request{URL: "http://[::1%zz/x"}, ""},
		{"bad escape in query", pixel.Request{URL: "https://www.google-analytics.com/g/collect?en=page_view&dl=%zz"}, "GA4 page_view"},
		{"data url", pixel.Request{URL: "data:image/gif;base64,R0lGOD"}, ""},
		{"batched ga4 hits", pixel.Request{
			URL: "https://region1.google-analytics.com/g/collect?v=2&tid=G-ABC123", Method: "POST",
			Body: "en=add_to_cart&ep.currency=USD\r\nen=view_item&ep.x=1",
		}, "GA4 add_to_cart"},
		{"batched unknown ga4 event", pixel.Request{
			URL: "https://www.google-analytics.com/g/collect?v=2&tid=G-ABC123", Method: "POST",
			Body: "en=custom_thing&ep.a=1\nen=page_view",
		}, "GA4 event"},
		{"ga4 hit without event name", pixel.Request{
			URL: "https://www.google-analytics.com/g/collect?v=2&tid=G-ABC123", Method: "POST", Body: "\r\n",
		}, "GA4 hit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var p pixel.Pixel
			require.NotPanics(t, func() { p = c.Classify(tc.req) })
			assert.Equal(t, tc.want, p.Label())
			assert.Equal(t, tc.want != "", p.Classified())
			assert.Equal(t, tc.req.URL, p.Request.URL)
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := classifier.New(signature.Default())
	req := pixel.Request{URL: "https://ct.pinterest.com/v3/?tid=1&event=addtocart"}

	first := c.Classify(req)
	for i := 0; i < 10; i++ {
		again := c.Classify(req)
		assert.Equal(t, first.Label(), again.Label())
		assert.Equal(t, first.DedupKey(), again.DedupKey())
	}
	assert.True(t, c.IsTracking(req))
	assert.False(t, c.IsTracking(pixel.Request{URL: "https://cdn.example.com/logo.png"}))
}

func TestDedupKeyUsesKeyParams(t *testing.T) {
	c := classifier.New(signature.Default())
	a := c.Classify(pixel.Request{URL: "https://www.google-analytics.com/g/collect?tid=G-1&en=page_view&_s=1"})
	b := c.Classify(pixel.Request{URL: "https://www.google-analytics.com/g/collect?tid=G-1&en=page_view&_s=2"})
	other := c.Classify(pixel.Request{URL: "https://www.google-analytics.com/g/collect?tid=G-2&en=page_view"})

	assert.Equal(t, a.DedupKey(), b.DedupKey())
	assert.NotEqual(t, a.DedupKey(), other.DedupKey())
	assert.Equal(t, "GA4", a.Platform())
}

func TestLabels(t *testing.T) {
	c := classifier.New(signature.Default())
	ps := []pixel.Pixel{
		c.Classify(pixel.Request{URL: "https://www.facebook.com/tr?ev=PageView"}),
		c.Classify(pixel.Request{URL: "https://cdn.example.com/x.js"}),
		c.Classify(pixel.Request{URL: "https://www.google-analytics.com/g/collect?en=page_view"}),
		c.Classify(pixel.Request{URL: "https://www.facebook.com/tr?ev=PageView&id=2"}),
	}
	assert.Equal(t, []string{"Facebook PageView", "GA4 page_view"}, pixel.Labels(ps))
}
