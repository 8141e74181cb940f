package signature_test

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/signature"
)

func input(t *testing.T, method, raw, body string) *signature.Input {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return &signature.Input{Host: u.Hostname(), Path: u.Path, Method: method, Query: u.Query(), Body: body}
}

func TestBuiltinCatalogMatches(t *testing.T) {
	cat := signature.Default()

	cases := []struct {
		name   string
		method string
		url    string
		body   string
		want   string
	}{
		{"ga4 page_view", "GET", "https://www.google-analytics.com/g/collect?v=2&tid=G-ABC&en=page_view", "", "GA4 page_view"},
		{"ga4 region host", "POST", "https://region1.google-analytics.com/g/collect?v=2&tid=G-ABC&en=purchase", "", "GA4 purchase"},
		{"ga4 new host", "POST", "https://region1.analytics.google.com/g/collect?v=2&en=add_to_cart", "", "GA4 add_to_cart"},
		{"ga4 custom event falls back", "GET", "https://www.google-analytics.com/g/collect?v=2&en=newsletter_open", "", "GA4 event"},
		{"ua pageview", "GET", "https://www.google-analytics.com/collect?v=1&t=pageview&tid=UA-1", "", "UA pageview"},
		{"ua timing hit", "GET", "https://www.google-analytics.com/j/collect?v=1&t=timing", "", "UA hit"},
		{"gtm container", "GET", "https://www.googletagmanager.com/gtm.js?id=GTM-XYZ", "", "GTM container"},
		{"gtag", "GET", "https://www.googletagmanager.com/gtag/js?id=G-ABC", "", "gtag.js load"},
		{"facebook pageview", "GET", "https://www.facebook.com/tr/?id=123&ev=PageView&dl=x", "", "Facebook PageView"},
		{"facebook custom", "GET", "https://www.facebook.com/tr?id=123&ev=QuizDone", "", "Facebook event"},
		{"facebook sdk", "GET", "https://connect.facebook.net/en_US/fbevents.js", "", "Facebook SDK load"},
		{"tiktok body", "POST", "https://analytics.tiktok.com/api/v2/pixel", `{"event":"Pageview","context":{"pixel":{"code":"C1"}}}`, "TikTok Pageview"},
		{"tiktok other", "POST", "https://analytics.tiktok.com/api/v2/pixel/act", `{"event":"ClickButton"}`, "TikTok event"},
		{"pinterest", "GET", "https://ct.pinterest.com/v3/?tid=26&event=checkout", "", "Pinterest checkout"},
		{"linkedin", "GET", "https://px.ads.linkedin.com/collect/?pid=42&fmt=gif", "", "LinkedIn Insight"},
		{"twitter", "GET", "https://t.co/1/i/adsct?txn_id=o1&p_id=Twitter", "", "Twitter pixel"},
		{"bing", "GET", "https://bat.bing.com/action/0?ti=5&evt=pageLoad", "", "Bing UET pageLoad"},
		{"hotjar", "GET", "https://script.hotjar.com/modules.js", "", "Hotjar"},
		{"segment", "POST", "https://api.segment.io/v1/t", `{"event":"x"}`, "Segment track"},
		{"mixpanel", "POST", "https://api-js.mixpanel.com/track/?ip=1", "", "Mixpanel track"},
		{"amplitude", "POST", "https://api2.amplitude.com/2/httpapi", "", "Amplitude event"},
		{"klaviyo", "POST", "https://a.klaviyo.com/client/events/?company_id=X", "", "Klaviyo event"},
		{"snowplow", "GET", "https://sp.example.com/i?e=pv&tv=js-3.0&aid=shop", "", "Snowplow page_view"},
		{"snowplow batch", "POST", "https://sp.example.com/com.snowplowanalytics.snowplow/tp2", `{"data":[]}`, "Snowplow batch"},
		{"plain asset", "GET", "https://shop.example.com/static/app.js", "", ""},
		{"lookalike host", "GET", "https://notfacebook.com/tr?ev=PageView", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cat.Match(input(t, tc.method, tc.url, tc.body))
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Label)
		})
	}
}

func TestMatchIsDeterministic(t *testing.T) {
	cat := signature.Default()
	in := input(t, "GET", "https://www.facebook.com/tr?id=1&ev=Purchase", "")
	first := cat.Match(in)
	for i := 0; i < 20; i++ {
		assert.Same(t, first, cat.Match(in))
	}
}

func TestFirstMatchWins(t *testing.T) {
	cat, err := signature.NewCatalog([]signature.Signature{
		{Label: "specific", Match: signature.Matcher{Host: "t.example", Query: []signature.ParamRule{{Name: "e", Equals: "buy"}}}},
		{Label: "general", Match: signature.Matcher{Host: "t.example"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "specific", cat.Match(input(t, "GET", "https://t.example/?e=buy", "")).Label)
	assert.Equal(t, "general", cat.Match(input(t, "GET", "https://t.example/?e=view", "")).Label)
	assert.Equal(t, []string{"specific", "general"}, cat.Labels())
}

func TestNewCatalogRejects(t *testing.T) {
	cases := map[string][]signature.Signature{
		"duplicate label": {
			{Label: "GA4 page_view", Match: signature.Matcher{Host: "a.example"}},
			{Label: "GA4 page_view", Match: signature.Matcher{Host: "b.example"}},
		},
		"empty label":    {{Match: signature.Matcher{Host: "a.example"}}},
		"no locator":     {{Label: "x", Match: signature.Matcher{Method: "GET"}}},
		"bad path regex": {{Label: "x", Match: signature.Matcher{PathRegex: "("}}},
		"bad query regex": {{Label: "x", Match: signature.Matcher{Host: "a.example",
			Query: []signature.ParamRule{{Name: "q", Regex: "[a-"}}}}},
		"query without name": {{Label: "x", Match: signature.Matcher{Host: "a.example",
			Query: []signature.ParamRule{{Equals: "1"}}}}},
	}
	for name, sigs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := signature.NewCatalog(sigs)
			require.Error(t, err)
			assert.True(t, errx.Is(err, errx.KindConfig), err.Error())
		})
	}
}

func TestLabelDerivedFromPlatformAndEvent(t *testing.T) {
	cat, err := signature.NewCatalog([]signature.Signature{
		{Platform: "Acme", Event: "signup", Match: signature.Matcher{Host: "acme.io"}},
	})
	require.NoError(t, err)
	_, ok := cat.Lookup("Acme signup")
	assert.True(t, ok)
}

func TestPlatforms(t *testing.T) {
	cat, err := signature.NewCatalog([]signature.Signature{
		{Platform: "Acme", Event: "signup", Match: signature.Matcher{Host: "acme.io"}},
		{Label: "loose", Match: signature.Matcher{Host: "loose.io"}},
		{Platform: "Beta", Event: "view", Match: signature.Matcher{Host: "beta.io"}},
		{Platform: "Acme", Event: "login", Match: signature.Matcher{Host: "acme.io", Path: "/login"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Beta"}, cat.Platforms())
	assert.True(t, cat.HasPlatform("Beta"))
	assert.False(t, cat.HasPlatform("loose"))

	assert.True(t, signature.Default().HasPlatform("GA4"))
}

func TestKeyValues(t *testing.T) {
	cat := signature.Default()

	in := input(t, "GET", "https://www.google-analytics.com/g/collect?tid=G-1&en=page_view&_p=99", "")
	sig := cat.Match(in)
	require.NotNil(t, sig)
	assert.Equal(t, []string{"G-1", "page_view"}, sig.KeyValues(in))

	body := `{"event":"Pageview","context":{"pixel":{"code":"C9"}}}`
	in = input(t, "POST", "https://analytics.tiktok.com/api/v2/pixel", body)
	sig = cat.Match(in)
	require.NotNil(t, sig)
	assert.Equal(t, []string{"C9", "Pageview"}, sig.KeyValues(in))
}

func TestLoadCustomSignatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signatures.yml")
	doc := `signatures:
  - platform: Acme
    event: signup
    key_params: [uid]
    match:
      host: collect.acme.io
      path: /e
      query:
        - name: ev
          equals: signup
  - label: Own GA4 page_view
    match:
      host: www.google-analytics.com
      path: /g/collect
      query: [{name: en, equals: page_view}, {name: tid, regex: "^G-OWN"}]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cat, err := signature.Load(path)
	require.NoError(t, err)
	assert.Equal(t, len(signature.Builtin())+2, cat.Len())

	got := cat.Match(input(t, "GET", "https://collect.acme.io/e/?ev=signup&uid=7", ""))
	require.NotNil(t, got)
	assert.Equal(t, "Acme signup", got.Label)

	got = cat.Match(input(t, "GET", "https://www.google-analytics.com/g/collect?en=page_view&tid=G-OWN1", ""))
	require.NotNil(t, got)
	assert.Equal(t, "Own GA4 page_view", got.Label)

	got = cat.Match(input(t, "GET", "https://www.google-analytics.com/g/collect?en=page_view&tid=G-OTHER", ""))
	require.NotNil(t, got)
	assert.Equal(t, "GA4 page_view", got.Label)
}

func TestLoadLayersSeveralFiles(t *testing.T) {
	dir := t.TempDir()
	suiteSigs := filepath.Join(dir, "suite.yml")
	extraSigs := filepath.Join(dir, "extra.yml")
	require.NoError(t, os.WriteFile(suiteSigs, []byte(`signatures:
  - {label: Suite hit, match: {host: hits.example}}
`), 0o644))
	require.NoError(t, os.WriteFile(extraSigs, []byte(`signatures:
  - {label: Extra hit, match: {host: hits.example}}
  - {label: Other hit, match: {host: other.example}}
`), 0o644))

	cat, err := signature.Load(suiteSigs, "", extraSigs)
	require.NoError(t, err)
	assert.Equal(t, len(signature.Builtin())+3, cat.Len())
	assert.Equal(t, []string{"Suite hit", "Extra hit", "Other hit"}, cat.Labels()[:3])
	assert.Equal(t, "Suite hit", cat.Match(input(t, "GET", "https://hits.example/x", "")).Label)

	cat, err = signature.Load()
	require.NoError(t, err)
	assert.Equal(t, len(signature.Builtin()), cat.Len())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := signature.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.True(t, errx.Is(err, errx.KindConfig))
}
