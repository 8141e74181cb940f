package signature

const (
	googleAnalyticsHost = `(^|\.)(google-analytics\.com|analytics\.google\.com)$`
	twitterHost         = `(^|\.)(t\.co|analytics\.twitter\.com|ads-twitter\.com)$`
	hotjarHost          = `(^|\.)hotjar\.(com|io)$`
	snowplowPath        = `^/(i|com\.snowplowanalytics\.snowplow/i)$`
)

// Builtin returns the default signatures, most specific first within each
// platform. The slice is freshly allocated on every call.
func Builtin() []Signature {
	var sigs []Signature

	for _, ev := range []string{
		"page_view", "view_item", "view_item_list", "select_item", "add_to_cart",
		"begin_checkout", "add_payment_info", "purchase", "sign_up", "login",
		"generate_lead", "search", "scroll", "user_engagement",
	} {
		sigs = append(sigs, ga4(ev))
	}
	sigs = append(sigs,
		Signature{
			Platform: "GA4", Event: "event", KeyParams: []string{"tid", "en"},
			Match: Matcher{HostRegex: googleAnalyticsHost, Path: "/g/collect", Query: []ParamRule{{Name: "en"}}},
		},
		Signature{
			Platform: "GA4", Event: "hit", KeyParams: []string{"tid"},
			Match: Matcher{HostRegex: googleAnalyticsHost, Path: "/g/collect"},
		},
		ua("pageview"),
		ua("event"),
		Signature{
			Platform: "UA", Event: "hit", KeyParams: []string{"tid", "t"},
			Match: Matcher{HostRegex: googleAnalyticsHost, PathRegex: `^(/r|/j)?/collect$`, Query: []ParamRule{{Name: "v", Equals: "1"}}},
		},
		Signature{
			Platform: "GTM", Event: "container", KeyParams: []string{"id"},
			Match: Matcher{Host: "googletagmanager.com", Path: "/gtm.js"},
		},
		Signature{
			Platform: "gtag.js", Event: "load", KeyParams: []string{"id"},
			Match: Matcher{Host: "googletagmanager.com", PathPrefix: "/gtag/js"},
		},
		Signature{
			Platform: "Google Ads", Event: "conversion",
			Match: Matcher{Host: "googleadservices.com", PathPrefix: "/pagead/conversion/"},
		},
		Signature{
			Platform: "Google Ads", Event: "remarketing",
			Match: Matcher{Host: "doubleclick.net", PathPrefix: "/pagead/viewthroughconversion/"},
		},
		Signature{
			Platform: "Floodlight", Event: "activity", KeyParams: []string{"src", "type", "cat"},
			Match: Matcher{HostRegex: `(^|\.)(fls|ad)\.doubleclick\.net$`, PathRegex: `^/activityi?[;/]`},
		},
	)

	for _, ev := range []string{
		"PageView", "ViewContent", "AddToCart", "InitiateCheckout", "AddPaymentInfo",
		"Purchase", "Lead", "CompleteRegistration", "Search",
	} {
		sigs = append(sigs, facebook(ev))
	}
	sigs = append(sigs,
		Signature{
			Platform: "Facebook", Event: "event", KeyParams: []string{"id", "ev"},
			Match: Matcher{Host: "facebook.com", Path: "/tr", Query: []ParamRule{{Name: "ev"}}},
		},
		Signature{
			Platform: "Facebook", Event: "SDK load",
			Match: Matcher{Host: "connect.facebook.net", PathRegex: `/fbevents(\.[a-z]+)?\.js$`},
		},
	)

	for _, ev := range []string{"Pageview", "ViewContent", "AddToCart", "CompletePayment"} {
		sigs = append(sigs, tiktok(ev))
	}
	sigs = append(sigs,
		Signature{
			Platform: "TikTok", Event: "event", KeyParams: []string{"context.pixel.code", "event"},
			Match: Matcher{Host: "analytics.tiktok.com", PathPrefix: "/api/v2/pixel"},
		},
		pinterest("pagevisit"),
		pinterest("addtocart"),
		pinterest("checkout"),
		Signature{
			Platform: "Pinterest", Event: "event", KeyParams: []string{"tid", "event"},
			Match: Matcher{Host: "ct.pinterest.com", PathRegex: `^/(v3|user)/?$`, Query: []ParamRule{{Name: "event"}}},
		},
		Signature{
			Platform: "LinkedIn", Event: "Insight", KeyParams: []string{"pid"},
			Match: Matcher{Host: "px.ads.linkedin.com", PathRegex: `^/(collect|attribution_trigger)/?$`},
		},
		Signature{
			Platform: "Twitter", Event: "pixel", KeyParams: []string{"txn_id"},
			Match: Matcher{HostRegex: twitterHost, PathRegex: `/i/adsct$`},
		},
		Signature{
			Platform: "Snapchat", Event: "pixel",
			Match: Matcher{Host: "tr.snapchat.com", PathRegex: `^/(p|cm/[a-z])`},
		},
		bing("pageLoad"),
		bing("custom"),
		Signature{
			Platform: "Bing UET", Event: "event", KeyParams: []string{"ti", "evt"},
			Match: Matcher{Host: "bat.bing.com", PathPrefix: "/action/"},
		},
		Signature{
			Platform: "Reddit", Event: "pixel", KeyParams: []string{"id", "event"},
			Match: Matcher{Host: "alb.reddit.com", Path: "/rp.gif"},
		},
		Signature{
			Platform: "Hotjar", Event: "session", Label: "Hotjar",
			Match: Matcher{HostRegex: hotjarHost},
		},
		Signature{
			Platform: "Segment", Event: "track",
			Match: Matcher{Host: "api.segment.io", Path: "/v1/t"},
		},
		Signature{
			Platform: "Segment", Event: "page",
			Match: Matcher{Host: "api.segment.io", Path: "/v1/p"},
		},
		Signature{
			Platform: "Segment", Event: "identify",
			Match: Matcher{Host: "api.segment.io", Path: "/v1/i"},
		},
		Signature{
			Platform: "Mixpanel", Event: "track",
			Match: Matcher{Host: "mixpanel.com", PathPrefix: "/track"},
		},
		Signature{
			Platform: "Amplitude", Event: "event",
			Match: Matcher{Host: "amplitude.com", PathRegex: `^/(2/httpapi|batch)?/?$`},
		},
		Signature{
			Platform: "Klaviyo", Event: "event",
			Match: Matcher{Host: "klaviyo.com", PathRegex: `^/(client/events|api/track)`},
		},
		Signature{
			Platform: "Heap", Event: "event",
			Match: Matcher{Host: "heapanalytics.com", PathRegex: `^/(h|api/track)`},
		},
		snowplow("page_view", "pv"),
		snowplow("struct_event", "se"),
		snowplow("unstruct_event", "ue"),
		Signature{
			Platform: "Snowplow", Event: "batch",
			Match: Matcher{PathRegex: `^/com\.snowplowanalytics\.snowplow/tp2$`, Method: "POST"},
		},
	)
	return sigs
}

func ga4(event string) Signature {
	return Signature{
		Platform:  "GA4",
		Event:     event,
		KeyParams: []string{"tid", "en"},
		Match: Matcher{
			HostRegex: googleAnalyticsHost,
			Path:      "/g/collect",
			Query:     []ParamRule{{Name: "en", Equals: event}},
		},
	}
}

func ua(hitType string) Signature {
	return Signature{
		Platform:  "UA",
		Event:     hitType,
		KeyParams: []string{"tid", "t", "ec", "ea"},
		Match: Matcher{
			HostRegex: googleAnalyticsHost,
			PathRegex: `^(/r|/j)?/collect$`,
			Query:     []ParamRule{{Name: "v", Equals: "1"}, {Name: "t", Equals: hitType}},
		},
	}
}

func facebook(event string) Signature {
	return Signature{
		Platform:  "Facebook",
		Event:     event,
		KeyParams: []string{"id", "ev"},
		Match: Matcher{
			Host:  "facebook.com",
			Path:  "/tr",
			Query: []ParamRule{{Name: "ev", Equals: event}},
		},
	}
}

func tiktok(event string) Signature {
	return Signature{
		Platform:  "TikTok",
		Event:     event,
		KeyParams: []string{"context.pixel.code", "event"},
		Match: Matcher{
			Host:       "analytics.tiktok.com",
			PathPrefix: "/api/v2/pixel",
			Body:       &BodyRule{JSONPath: "event", JSONValue: event},
		},
	}
}

func pinterest(event string) Signature {
	return Signature{
		Platform:  "Pinterest",
		Event:     event,
		KeyParams: []string{"tid", "event"},
		Match: Matcher{
			Host:      "ct.pinterest.com",
			PathRegex: `^/(v3|user)/?$`,
			Query:     []ParamRule{{Name: "event", Equals: event}},
		},
	}
}

func bing(event string) Signature {
	return Signature{
		Platform:  "Bing UET",
		Event:     event,
		KeyParams: []string{"ti", "evt", "ea"},
		Match: Matcher{
			Host:       "bat.bing.com",
			PathPrefix: "/action/",
			Query:      []ParamRule{{Name: "evt", Equals: event}},
		},
	}
}

func snowplow(event, code string) Signature {
	return Signature{
		Platform:  "Snowplow",
		Event:     event,
		KeyParams: []string{"aid", "eid"},
		Match: Matcher{
			PathRegex: snowplowPath,
			Query:     []ParamRule{{Name: "e", Equals: code}, {Name: "tv"}},
		},
	}
}
