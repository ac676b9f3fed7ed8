package extract

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// minContentLength is the minimum readability TextContent length for
// the extraction to be considered valid. Below it we assume the
// algorithm missed the main content and fall back to raw HTML.
const minContentLength = 50

// maxPromptChars caps how much page content goes into an LLM prompt.
const maxPromptChars = 8000

// newMarkdownConverter builds the reusable, goroutine-safe converter
// used to prepare page content for the LLM:
//
//   - base plugin: strips script, style, iframe, noscript, head, meta
//     and friends — all noise for a model.
//   - commonmark plugin: standard Markdown rendering.
//   - table plugin: keeps spec/comparison tables legible with minimal
//     cell padding to save tokens.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// prepareContent reduces a product page to prompt-sized Markdown: run
// readability to isolate the main content, convert it to Markdown,
// then truncate. Readability failures fall back to converting the
// whole page; conversion failures fall back to the HTML itself.
func prepareContent(conv *converter.Converter, rawHTML, sourceURL string) string {
	content := rawHTML

	if parsedURL, err := nurl.Parse(sourceURL); err == nil {
		article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
		if err != nil {
			slog.Warn("extract: readability failed, using full page", "url", sourceURL, "error", err)
		} else if len(strings.TrimSpace(article.TextContent)) >= minContentLength {
			content = article.Content
		}
	}

	markdown, err := conv.ConvertString(content, converter.WithDomain(hostOf(sourceURL)))
	if err != nil {
		slog.Warn("extract: markdown conversion failed, stripping tags", "url", sourceURL, "error", err)
		markdown = stripTags(content)
	}

	return truncate(markdown, maxPromptChars)
}

// stripTags reduces HTML to its visible text, the last resort when the
// markdown converter rejects a page. Script, style, and noscript
// content is dropped.
func stripTags(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var b strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text != "" {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(text)
			}
		}
	}
}

func hostOf(sourceURL string) string {
	u, err := nurl.Parse(sourceURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n...[truncated]"
}
