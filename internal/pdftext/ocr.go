package pdftext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ocrText rasterizes the first pages of a scanned PDF and runs OCR on each
// page image concurrently. A page that fails OCR is logged and skipped; the
// document only fails when no page yields text.
func (e *Extractor) ocrText(ctx context.Context, path string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "invoice-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	args := []string{
		"-r", strconv.Itoa(e.cfg.DPI),
		"-png",
		"-f", "1",
		"-l", strconv.Itoa(e.cfg.MaxOCRPages),
		path, prefix,
	}
	if _, stderr, err := e.runner.Run(ctx, e.cfg.Pdftoppm, e.logger, args...); err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(stderr), 512))
	}

	images, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(images) == 0 {
		return "", fmt.Errorf("no page images produced for %s", path)
	}
	sort.Strings(images)
	if len(images) > e.cfg.MaxOCRPages {
		images = images[:e.cfg.MaxOCRPages]
	}

	pages := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			text, err := e.ocrPage(gctx, img)
			if err != nil {
				// A single bad page should not sink the document.
				e.logger.Warn("pdftext.ocr.page_failed", "image", img, "error", err)
				return nil
			}
			pages[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var nonEmpty []string
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(p))
		}
	}
	return strings.Join(nonEmpty, "\n\n"), nil
}

// ocrPage preprocesses one page image (grayscale + contrast stretch, when a
// magick binary is configured) and runs tesseract over it.
func (e *Extractor) ocrPage(ctx context.Context, img string) (string, error) {
	if e.cfg.Magick != "" {
		cleaned := strings.TrimSuffix(img, ".png") + "-clean.png"
		_, stderr, err := e.runner.Run(ctx, e.cfg.Magick, e.logger,
			img, "-colorspace", "Gray", "-contrast-stretch", "2%x1%", cleaned)
		if err != nil {
			e.logger.Warn("pdftext.ocr.preprocess_failed",
				"image", img, "error", err, "stderr", truncate(string(stderr), 512))
		} else {
			img = cleaned
		}
	}

	stdout, stderr, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, img, "stdout")
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(stderr), 512))
	}
	return string(stdout), nil
}
