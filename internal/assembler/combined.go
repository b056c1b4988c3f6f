package assembler

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"sitedoc/pkg/types"
)

// buildCombined renders one markdown document: metadata block, table of
// contents, one section per processed page in processing order, and
// optionally the site structure diagram.
func (a *Assembler) buildCombined(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", in.title())
	fmt.Fprintf(&b, "- Root URL: %s\n", in.Sitemap.RootURL)
	fmt.Fprintf(&b, "- Domain: %s\n", in.Sitemap.Domain)
	fmt.Fprintf(&b, "- Pages: %d\n", len(in.Pages))
	fmt.Fprintf(&b, "- Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	if in.Partial {
		fmt.Fprintf(&b, "- Partial: %d of %d pages processed\n", in.Processed, in.Total)
	}
	b.WriteString("\n")

	anchors := sectionAnchors(in.Pages)

	b.WriteString("## Table of Contents\n\n")
	for i, page := range in.Pages {
		fmt.Fprintf(&b, "%d. [%s](#%s)\n", i+1, page.Title, anchors[i])
	}
	b.WriteString("\n")

	if in.IncludeSitemap {
		b.WriteString("## Site Structure\n\n")
		b.WriteString(a.structureDiagram(in))
		b.WriteString("\n")
	}

	for _, page := range in.Pages {
		fmt.Fprintf(&b, "---\n\n## %s\n\n", page.Title)
		fmt.Fprintf(&b, "Source: %s\n\n", page.URL)
		if page.ScreenshotPath != "" {
			if img := inlineScreenshot(page.ScreenshotPath); img != "" {
				b.WriteString(img)
				b.WriteString("\n\n")
			}
		}
		content := strings.TrimSpace(page.Content)
		if content != "" {
			b.WriteString(content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// structureDiagram renders a mermaid graph where every non-root page gets
// exactly one inbound edge: from the first sitemap page whose links mention
// it, or from the root when no such parent exists.
func (a *Assembler) structureDiagram(in Input) string {
	sm := in.Sitemap

	ids := make(map[string]string, len(sm.Pages))
	var b strings.Builder
	b.WriteString("```mermaid\ngraph TD\n")
	for i, page := range sm.Pages {
		id := fmt.Sprintf("p%d", i)
		ids[page.URL] = id
		fmt.Fprintf(&b, "    %s[%q]\n", id, diagramLabel(page.Title, page.URL))
	}
	for _, page := range sm.Pages {
		if page.URL == sm.RootURL {
			continue
		}
		parent := sm.RootURL
		for _, candidate := range sm.Pages {
			if candidate.URL == page.URL {
				continue
			}
			if linksTo(candidate.Links, page.URL) {
				parent = candidate.URL
				break
			}
		}
		fmt.Fprintf(&b, "    %s --> %s\n", ids[parent], ids[page.URL])
	}
	b.WriteString("```\n")
	return b.String()
}

func linksTo(links []types.Link, target string) bool {
	for _, l := range links {
		if l.URL == target {
			return true
		}
	}
	return false
}

func diagramLabel(title, pageURL string) string {
	label := strings.TrimSpace(title)
	if label == "" {
		label = pageURL
	}
	label = strings.ReplaceAll(label, `"`, "'")
	if runes := []rune(label); len(runes) > 40 {
		label = string(runes[:40]) + "…"
	}
	return label
}

// inlineScreenshot embeds a captured screenshot as a data URI so the combined
// document stays self-contained after the job temp dir is removed.
func inlineScreenshot(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return fmt.Sprintf("![Screenshot](data:image/png;base64,%s)", encoded)
}
