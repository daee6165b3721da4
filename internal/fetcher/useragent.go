// Package fetcher implements the wire-protocol collaborator described in
// spec §4.8/§6: poll the dispatcher for work, perform the outbound
// fetch with a rotated User-Agent, and POST the body back.
package fetcher

import "math/rand"

// platforms and browsers compose the small matrix spec §9 open question
// (a) describes. The source picked arr[Math.random() % arr.length],
// which always lands on index 0; this implementation uses a proper
// uniform index instead, per the spec's stated intent.
var platforms = []string{
	"Windows NT 10.0; Win64; x64",
	"Macintosh; Intel Mac OS X 10_15_7",
	"X11; Linux x86_64",
	"Macintosh; Intel Mac OS X 13_4",
}

var browsers = []string{
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Gecko/20100101 Firefox/125.0",
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Edg/123.0.0.0",
}

// RandomUserAgent composes a plausible User-Agent string from a random
// platform and a random browser.
func RandomUserAgent() string {
	platform := platforms[rand.Intn(len(platforms))]
	browser := browsers[rand.Intn(len(browsers))]
	return "Mozilla/5.0 (" + platform + ") " + browser
}
