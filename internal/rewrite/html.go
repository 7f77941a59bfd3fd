// Package rewrite restructures upstream content so it can be embedded
// under the gateway's origin: HTML gets a base reference and style
// overrides, linked scripts are routed through the script engine, assets
// resolve via the relay. Transformations are targeted and textual; full
// DOM sanitization is out of scope.
package rewrite

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pagegate-org/pagegate/internal/faults"
	"github.com/pagegate-org/pagegate/internal/resources"
	"github.com/pagegate-org/pagegate/internal/token"
	"github.com/sirupsen/logrus"
)

// overrideStyles hides the upstream application chrome and forces the
// document itself to fill the viewport.
const overrideStyles = `<style>
header, nav, aside, [role="navigation"], [class*="sidebar"], [class*="topbar"], [class*="banner"] { display: none !important; }
html, body { width: 100% !important; height: 100% !important; margin: 0 !important; padding: 0 !important; overflow: auto !important; }
main, [role="main"], [class*="content"] { width: 100% !important; max-width: none !important; margin: 0 !important; }
</style>`

var (
	headOpenPattern  = regexp.MustCompile(`(?i)<head[^>]*>`)
	headClosePattern = regexp.MustCompile(`(?i)</head>`)
	scriptSrcPattern = regexp.MustCompile(`(?i)(<script\b[^>]*?\bsrc\s*=\s*)(["'])([^"']+)(["'])`)
)

// ContentEngine renders a protected resource as embeddable HTML. Pages are
// never cached: every render re-fetches so content stays fresh and each
// visit is observed.
type ContentEngine struct {
	resources *resources.Cache
	tokens    *token.Manager
	fetcher   Fetcher
	log       *logrus.Entry
}

func NewContentEngine(logger *logrus.Logger, res *resources.Cache, tokens *token.Manager, fetcher Fetcher) *ContentEngine {
	return &ContentEngine{
		resources: res,
		tokens:    tokens,
		fetcher:   fetcher,
		log:       logger.WithField("component", "content_engine"),
	}
}

// Render requires a live token whose slug claim matches the requested
// slug. Upstream bodies from failed fetches are never forwarded.
func (e *ContentEngine) Render(ctx context.Context, slug, accessToken string) ([]byte, error) {
	if _, err := e.tokens.Verify(accessToken, slug); err != nil {
		return nil, err
	}

	resource, err := e.resources.Get(ctx, slug)
	if err != nil {
		return nil, err
	}

	resp, err := e.fetcher.Get(ctx, resource.UpstreamAddress)
	if err != nil {
		e.log.WithError(err).WithField("slug", slug).Error("Upstream document fetch failed")
		return nil, faults.ErrUpstreamFailure
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.log.WithFields(logrus.Fields{"slug": slug, "status": resp.StatusCode}).Error("Upstream document returned non-200")
		return nil, faults.ErrUpstreamFailure
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.ErrUpstreamFailure
	}

	base, err := url.Parse(resource.UpstreamAddress)
	if err != nil {
		return nil, faults.ErrUpstreamFailure
	}

	html := string(body)
	html = injectBaseRef(html, base)
	html = injectStyleOverrides(html)
	html = redirectLinkedScripts(html, base)

	return []byte(html), nil
}

// injectBaseRef anchors root-relative paths to the upstream origin. It
// lands directly after the opening head tag so it precedes every other
// URL-bearing element.
func injectBaseRef(html string, base *url.URL) string {
	baseTag := `<base href="` + base.Scheme + `://` + base.Host + `/">`
	if loc := headOpenPattern.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + baseTag + html[loc[1]:]
	}
	return baseTag + html
}

func injectStyleOverrides(html string) string {
	if loc := headClosePattern.FindStringIndex(html); loc != nil {
		return html[:loc[0]] + overrideStyles + html[loc[0]:]
	}
	return html + overrideStyles
}

// redirectLinkedScripts points script src attributes at the js proxy so
// linked scripts pass through the script engine. Inline scripts are left
// untouched.
func redirectLinkedScripts(html string, base *url.URL) string {
	return scriptSrcPattern.ReplaceAllStringFunc(html, func(match string) string {
		parts := scriptSrcPattern.FindStringSubmatch(match)
		if parts == nil {
			return match
		}
		ref, err := url.Parse(strings.TrimSpace(parts[3]))
		if err != nil {
			return match
		}
		absolute := base.ResolveReference(ref).String()
		proxied := "/js-proxy?url=" + url.QueryEscape(absolute)
		return parts[1] + parts[2] + proxied + parts[4]
	})
}
