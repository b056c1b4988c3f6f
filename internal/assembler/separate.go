package assembler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// writeSeparate writes one .md file per page plus an index.md under a fresh
// subdirectory named from the site domain and a timestamp. Returns the
// directory and the files written, index last.
func (a *Assembler) writeSeparate(in Input) (string, []string, error) {
	dirName := fmt.Sprintf("%s-%s",
		slugify(in.Sitemap.Domain, a.opts.FilenameMaxLen),
		time.Now().Format("20060102-150405"))
	dir := filepath.Join(a.opts.OutputDir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create output dir: %w", err)
	}

	taken := make(map[string]struct{}, len(in.Pages)+1)
	taken["index"] = struct{}{}

	files := make([]string, 0, len(in.Pages)+1)
	names := make([]string, 0, len(in.Pages))

	for i, page := range in.Pages {
		name := pageFilename(page, i, a.opts.FilenameMaxLen, taken)

		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\nSource: %s\n\n", page.Title, page.URL)

		if page.ScreenshotPath != "" {
			shotName := strings.TrimSuffix(name, ".md") + ".png"
			if err := copyFile(page.ScreenshotPath, filepath.Join(dir, shotName)); err != nil {
				a.logger.Warn("screenshot copy failed", "page", page.URL, "error", err)
			} else {
				fmt.Fprintf(&b, "![Screenshot](%s)\n\n", shotName)
			}
		}

		content := strings.TrimSpace(page.Content)
		if content != "" {
			b.WriteString(content)
			b.WriteString("\n")
		}

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return "", nil, fmt.Errorf("write page file %s: %w", name, err)
		}
		files = append(files, path)
		names = append(names, name)
	}

	indexPath := filepath.Join(dir, "index.md")
	if err := os.WriteFile(indexPath, []byte(a.buildIndex(in, names)), 0o644); err != nil {
		return "", nil, fmt.Errorf("write index: %w", err)
	}
	files = append(files, indexPath)

	return dir, files, nil
}

func (a *Assembler) buildIndex(in Input, names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", in.title())
	fmt.Fprintf(&b, "- Root URL: %s\n", in.Sitemap.RootURL)
	fmt.Fprintf(&b, "- Domain: %s\n", in.Sitemap.Domain)
	fmt.Fprintf(&b, "- Pages: %d\n", len(in.Pages))
	fmt.Fprintf(&b, "- Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	if in.Partial {
		fmt.Fprintf(&b, "- Partial: %d of %d pages processed\n", in.Processed, in.Total)
	}
	b.WriteString("\n## Pages\n\n")
	for i, page := range in.Pages {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, page.Title, names[i])
	}
	b.WriteString("\n")
	return b.String()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
