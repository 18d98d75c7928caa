package webfetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"
)

// ContentSimplifier turns an HTML page into model-friendly text. It never fails:
// pages it cannot handle come back as SimplifyFailedMarker.
type ContentSimplifier interface {
	Simplify(html, pageURL string) string
}

// Simplifier extracts the main article with readability and renders it as
// markdown with ATX headings
type Simplifier struct {
	converter *converter.Converter
	logger    *logrus.Logger
}

// NewSimplifier creates a Simplifier
func NewSimplifier(logger *logrus.Logger) *Simplifier {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithHeadingStyle(commonmark.HeadingStyleATX),
			),
		),
	)

	// script, style, noscript and iframe are already dropped by the base plugin
	for _, tag := range []string{
		"embed", "object", "nav", "header", "footer", "aside",
		"form", "button", "select", "canvas", "svg", "video", "audio",
	} {
		conv.Register.TagType(tag, converter.TagTypeRemove, converter.PriorityStandard)
	}

	return &Simplifier{converter: conv, logger: logger}
}

// Simplify converts html to markdown. When pageURL carries a fragment that names
// an element on the page, only that section is converted and readability is skipped.
func (s *Simplifier) Simplify(html, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u == nil {
		u = &url.URL{}
	}

	if u.Fragment != "" {
		if section, ok := FilterHTMLByFragment(s.logger, html, u.Fragment); ok {
			if markdown, err := s.toMarkdown(section, u); err == nil && markdown != "" {
				return markdown
			}
		}
	}

	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		s.logger.WithError(err).WithField("url", pageURL).Debug("Readability extraction failed")
		return SimplifyFailedMarker
	}
	if strings.TrimSpace(article.Content) == "" {
		s.logger.WithField("url", pageURL).Debug("Readability found no main content")
		return SimplifyFailedMarker
	}

	markdown, err := s.toMarkdown(article.Content, u)
	if err != nil {
		s.logger.WithError(err).WithField("url", pageURL).Debug("Markdown conversion failed")
		return SimplifyFailedMarker
	}
	if markdown == "" {
		return SimplifyFailedMarker
	}

	s.logger.WithFields(logrus.Fields{
		"url":             pageURL,
		"html_length":     len(html),
		"markdown_length": len(markdown),
	}).Debug("Simplified HTML to markdown")

	return markdown
}

func (s *Simplifier) toMarkdown(htmlContent string, pageURL *url.URL) (string, error) {
	var (
		markdown string
		err      error
	)
	if pageURL.Host != "" {
		// Resolve relative links against the page origin
		markdown, err = s.converter.ConvertString(htmlContent, converter.WithDomain(pageURL.Scheme+"://"+pageURL.Host))
	} else {
		markdown, err = s.converter.ConvertString(htmlContent)
	}
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}

func isHeading(tag string) bool {
	return len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
}

// FilterHTMLByFragment narrows the page to the element whose id is fragment.
// A heading takes every following sibling up to the next heading of the same or
// higher level; any other element takes its own subtree. ok is false when the
// fragment is not on the page.
func FilterHTMLByFragment(logger *logrus.Logger, htmlContent, fragment string) (string, bool) {
	if fragment == "" {
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		logger.WithError(err).Debug("Failed to parse HTML for fragment filtering")
		return "", false
	}

	// Attribute selector rather than "#id" so ids that are not valid CSS identifiers still match
	target := doc.Find(fmt.Sprintf("[id=%q]", fragment)).First()
	if target.Length() == 0 {
		logger.WithField("fragment", fragment).Debug("Fragment not found, using full page")
		return "", false
	}

	tag := goquery.NodeName(target)
	var parts []string

	outer, err := goquery.OuterHtml(target)
	if err != nil {
		return "", false
	}
	parts = append(parts, outer)

	if isHeading(tag) {
		level := tag[1]
		target.NextAll().EachWithBreak(func(_ int, sibling *goquery.Selection) bool {
			siblingTag := goquery.NodeName(sibling)
			if isHeading(siblingTag) && siblingTag[1] <= level {
				return false
			}
			if siblingHTML, err := goquery.OuterHtml(sibling); err == nil {
				parts = append(parts, siblingHTML)
			}
			return true
		})
	}

	logger.WithFields(logrus.Fields{
		"fragment": fragment,
		"tag":      tag,
		"parts":    len(parts),
	}).Debug("Filtered HTML by fragment")

	return "<!DOCTYPE html><html><body>" + strings.Join(parts, "\n") + "</body></html>", true
}
