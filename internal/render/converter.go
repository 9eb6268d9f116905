// Package render drives external PDF rasterisation tools to produce one JPEG
// per document page.
package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/readmill/pagepress/config"
)

// Converter rasterises a local PDF. Implementations wrap a specific external
// toolchain; the worker only depends on this interface.
type Converter interface {
	// PageCount returns the number of pages in the document at path.
	PageCount(ctx context.Context, path string) (int, error)
	// RenderPage rasterises a single page into outDir and returns the path of
	// the canonically named output file.
	RenderPage(ctx context.Context, path string, page int, outDir string) (string, error)
}

// canonicalPagePattern matches files produced by CanonicalPageName.
var canonicalPagePattern = regexp.MustCompile(`^page-(\d{4})\.jpg$`)

// CanonicalPageName returns the fixed-width file name a rendered page is
// stored under locally. The 4-digit padding gives deterministic lexical
// ordering for up to 9999 pages.
func CanonicalPageName(page int) string {
	return fmt.Sprintf("page-%04d.jpg", page)
}

// ScanRenderedPages walks dir for canonically named page files and returns a
// page-number -> path map. This re-scan, not any in-loop bookkeeping, is the
// authoritative record of what was produced.
func ScanRenderedPages(dir string) (map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan rendered pages: %w", err)
	}

	pages := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := canonicalPagePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		page, convErr := strconv.Atoi(m[1])
		if convErr != nil || page < 1 {
			continue
		}
		pages[page] = filepath.Join(dir, e.Name())
	}
	return pages, nil
}

// MissingPages returns the sorted page numbers in 1..total absent from rendered.
func MissingPages(rendered map[int]string, total int) []int {
	var missing []int
	for page := 1; page <= total; page++ {
		if _, ok := rendered[page]; !ok {
			missing = append(missing, page)
		}
	}
	sort.Ints(missing)
	return missing
}

// PopplerConverter implements Converter using the poppler-utils CLI tools
// pdfinfo (page-count discovery) and pdftoppm (per-page rasterisation).
type PopplerConverter struct {
	cfg config.RendererConfig
}

var _ Converter = (*PopplerConverter)(nil)

// NewPopplerConverter creates a converter using the given renderer configuration.
func NewPopplerConverter(cfg config.RendererConfig) *PopplerConverter {
	return &PopplerConverter{cfg: cfg}
}

// PageCount invokes pdfinfo and parses the page count from its output.
func (c *PopplerConverter) PageCount(ctx context.Context, path string) (int, error) {
	cmd := exec.CommandContext(ctx, c.cfg.PdfInfoPath, path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo %s: %w\noutput: %s", path, err, strings.TrimSpace(string(output)))
	}
	return parsePageCount(string(output))
}

// parsePageCount extracts the "Pages:" line from pdfinfo output.
func parsePageCount(output string) (int, error) {
	for _, line := range strings.Split(output, "\n") {
		name, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(name) != "Pages" {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("parse page count %q: %w", strings.TrimSpace(value), err)
		}
		return count, nil
	}
	return 0, fmt.Errorf("page count not found in pdfinfo output")
}

// RenderPage invokes pdftoppm constrained to a single page and renames its
// output to the canonical name.
//
// pdftoppm pads the page number in its output file name to the width of the
// document's last page, so the produced name is not predictable from the page
// number alone. The output is located by probing the known padding widths and
// renamed; an unlocatable output is a fatal error because a missing page would
// break the 1..N sequence invariant.
func (c *PopplerConverter) RenderPage(ctx context.Context, path string, page int, outDir string) (string, error) {
	rawPrefix := filepath.Join(outDir, fmt.Sprintf("raw-%d", page))
	pageArg := strconv.Itoa(page)

	cmd := exec.CommandContext(ctx, c.cfg.PdfToPpmPath,
		"-jpeg",
		"-r", strconv.Itoa(c.cfg.DPI),
		"-jpegopt", fmt.Sprintf("quality=%d", c.cfg.Quality),
		"-f", pageArg,
		"-l", pageArg,
		path,
		rawPrefix,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("pdftoppm page %d: %w\noutput: %s", page, err, strings.TrimSpace(string(output)))
	}

	rawPath, err := locateToolOutput(rawPrefix, page)
	if err != nil {
		return "", err
	}

	canonical := filepath.Join(outDir, CanonicalPageName(page))
	if renameErr := os.Rename(rawPath, canonical); renameErr != nil {
		return "", fmt.Errorf("rename page %d output: %w", page, renameErr)
	}
	return canonical, nil
}

// paddingWidths are the zero-padding widths pdftoppm is known to use for the
// page number suffix. Width 0 covers documents short enough that no padding
// is applied at all.
var paddingWidths = []int{2, 3, 4, 0}

// locateToolOutput probes the candidate file names the rasteriser may have
// produced for page and returns the one that exists.
func locateToolOutput(rawPrefix string, page int) (string, error) {
	candidates := make([]string, 0, len(paddingWidths))
	for _, width := range paddingWidths {
		candidate := fmt.Sprintf("%s-%0*d.jpg", rawPrefix, width, page)
		candidates = append(candidates, candidate)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no rasteriser output found for page %d (tried %s)",
		page, strings.Join(candidates, ", "))
}
