package converter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stackvity/langnotes/pkg/converter/cache"
	"github.com/stackvity/langnotes/pkg/converter/encoding"
	"github.com/stackvity/langnotes/pkg/converter/format"
	tpl "github.com/stackvity/langnotes/pkg/converter/template"
	"github.com/stackvity/langnotes/pkg/markup"
	"github.com/stackvity/langnotes/pkg/notes"
)

// FileProcessor turns one discovered file into a report entry: FileInfo,
// SkippedInfo or ErrorInfo.
type FileProcessor interface {
	ProcessFile(ctx context.Context, absFilePath string) (result interface{}, status Status, err error)
}

// NotebookProcessor renders notebook documents to HTML pages. It is safe
// for concurrent use by the worker pool.
type NotebookProcessor struct {
	opts             *Options
	logger           *slog.Logger
	cacheManager     cache.CacheManager
	detector         format.Detector
	encodingHandler  encoding.EncodingHandler
	templateExecutor tpl.TemplateExecutor
	decoder          *notes.Decoder
	renderer         *notes.Renderer
	configHash       string
	generatedBy      string

	outputsMu sync.Mutex
	outputs   map[string]string // output path -> source path that claimed it
}

// NewNotebookProcessor creates a NotebookProcessor from opts. The engine
// fills in every dependency before calling it.
func NewNotebookProcessor(opts *Options, loggerHandler slog.Handler) (FileProcessor, error) {
	if opts.FormatDetector == nil || opts.EncodingHandler == nil || opts.TemplateExecutor == nil {
		return nil, fmt.Errorf("%w: processor dependencies are not initialized", ErrConfigValidation)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "processor"))

	cacheMgr := opts.CacheManager
	if cacheMgr == nil {
		cacheMgr = cache.NoOpCacheManager{}
	}

	configHash, err := calculateConfigHash(opts)
	if err != nil {
		logger.Error("Failed to calculate config hash, caching will be ineffective", slog.String("error", err.Error()))
		configHash = ""
	}
	logger.Debug("Configuration hash calculated", slog.String("configHash", configHash))

	version := opts.AppVersion
	if version == "" {
		version = "dev"
	}

	return &NotebookProcessor{
		opts:             opts,
		logger:           logger,
		cacheManager:     cacheMgr,
		detector:         opts.FormatDetector,
		encodingHandler:  opts.EncodingHandler,
		templateExecutor: opts.TemplateExecutor,
		decoder:          &notes.Decoder{ValidateSchema: opts.Markup.ValidateSchema},
		renderer: notes.NewRenderer(notes.RendererOptions{
			Markup: markup.Options{
				Colors:          opts.ColorSource,
				AllowInlineHTML: opts.Markup.AllowInlineHTML,
			},
			Logger: loggerHandler,
		}),
		configHash:  configHash,
		generatedBy: "langnotes " + version,
		outputs:     make(map[string]string),
	}, nil
}

// ProcessFile runs the pipeline for one file: stat and read, cache check,
// binary and size checks, charset decoding, format detection, document
// decoding, rendering, page templating, writing and cache update.
func (p *NotebookProcessor) ProcessFile(ctx context.Context, absFilePath string) (result interface{}, status Status, err error) {
	startTime := time.Now()
	relPath, relErr := filepath.Rel(p.opts.InputPath, absFilePath)
	if relErr != nil {
		err = fmt.Errorf("%w: relative path of '%s': %w", ErrConfigValidation, absFilePath, relErr)
		return ErrorInfo{Path: absFilePath, Error: err.Error(), IsFatal: true}, StatusFailed, err
	}
	relPath = filepath.ToSlash(relPath)
	logger := p.logger.With(slog.String("path", relPath))

	defer func() {
		message := ""
		level := slog.LevelDebug
		if err != nil {
			status = StatusFailed
			message = err.Error()
			level = slog.LevelError
		}
		logger.Log(ctx, level, "Processor finished file task",
			slog.String("status", string(status)), slog.Duration("duration", time.Since(startTime)), slog.String("message", message))
	}()

	// fail records a per-file error; it is fatal only in stop mode.
	fail := func(sentinel error, cause error, msg string) (interface{}, Status, error) {
		e := fmt.Errorf("%w: %w", sentinel, cause)
		if cause == nil {
			e = fmt.Errorf("%w: %s", sentinel, msg)
		}
		return ErrorInfo{Path: relPath, Error: msg, IsFatal: p.opts.OnErrorMode == OnErrorStop}, StatusFailed, e
	}
	skip := func(reason, details string) (interface{}, Status, error) {
		logger.Info("Skipping file", slog.String("reason", reason), slog.String("details", details))
		return SkippedInfo{Path: relPath, Reason: reason, Details: details}, StatusSkipped, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ErrorInfo{Path: relPath, Error: ctxErr.Error()}, StatusFailed, ctxErr
	}

	// 1. Stat and read.
	info, statErr := os.Stat(absFilePath)
	if statErr != nil {
		return fail(ErrStatFailed, statErr, fmt.Sprintf("Failed to stat file: %v", statErr))
	}
	modTime, size := info.ModTime(), info.Size()

	if size > p.opts.LargeFileThreshold && p.opts.LargeFileThreshold > 0 {
		details := fmt.Sprintf("File size %d bytes > threshold %d bytes", size, p.opts.LargeFileThreshold)
		if p.opts.LargeFileMode == LargeFileError {
			return fail(ErrLargeFile, nil, "large file encountered ("+details+")")
		}
		return skip(SkipReasonLarge, details)
	}

	source, readErr := os.ReadFile(absFilePath)
	if readErr != nil {
		return fail(ErrReadFailed, readErr, fmt.Sprintf("Failed to read file: %v", readErr))
	}
	sourceHash := fmt.Sprintf("%x", sha256.Sum256(source))
	outputRelPath := generateOutputPath(relPath)
	absOutputPath := filepath.Join(p.opts.OutputPath, filepath.FromSlash(outputRelPath))

	// 2. Cache.
	cacheStatus := CacheStatusDisabled
	if p.opts.CacheEnabled && p.configHash != "" {
		cacheStatus = CacheStatusMiss
		if p.opts.IgnoreCacheRead {
			logger.Debug("Cache read disabled, forcing miss")
		} else if hit, entry := p.cacheManager.Check(relPath, modTime, sourceHash, p.configHash); hit {
			if _, outErr := os.Stat(absOutputPath); outErr == nil {
				if owner, ok := p.claimOutput(outputRelPath, relPath); !ok {
					return skip(SkipReasonOutputConflict, outputConflictDetails(outputRelPath, owner))
				}
				logger.Info("Cache hit", slog.String("outputHash", entry.OutputHash))
				return FileInfo{
					Path:        relPath,
					OutputPath:  outputRelPath,
					Format:      notes.Format(entry.Format),
					BlockCount:  entry.BlockCount,
					SizeBytes:   size,
					ModTime:     modTime,
					CacheStatus: CacheStatusHit,
					DurationMs:  time.Since(startTime).Milliseconds(),
				}, StatusCached, nil
			}
			logger.Debug("Cache entry found but output is missing, re-rendering", slog.String("outputPath", outputRelPath))
		}
	}

	// 3. Binary content.
	if p.encodingHandler.IsBinary(source) {
		if p.opts.BinaryMode == BinaryError {
			return fail(ErrBinaryFile, nil, "binary file encountered")
		}
		return skip(SkipReasonBinary, "Binary file detected")
	}

	// 4. Charset.
	decoded, encErr := p.encodingHandler.Decode(source)
	if encErr != nil {
		return fail(ErrDecodeFailed, encErr, fmt.Sprintf("Charset decoding failed: %v", encErr))
	}
	logger.Debug("Encoding handled", slog.String("encoding", decoded.Encoding), slog.Bool("certain", decoded.Certain))

	// 5. Document format.
	docFormat, ok := p.detector.Detect(decoded.Text, relPath)
	if !ok {
		return skip(SkipReasonUnsupported, "Not a JSON, YAML or TOML notebook")
	}

	// 6. Document.
	doc, decErr := p.decoder.Decode(decoded.Text, docFormat)
	if decErr != nil {
		return fail(ErrDecodeFailed, decErr, fmt.Sprintf("Invalid %s notebook: %v", docFormat, decErr))
	}
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
	}

	// 7. Render.
	rendered, renderErr := p.renderer.RenderDocument(ctx, doc)
	if renderErr != nil {
		return ErrorInfo{Path: relPath, Error: renderErr.Error()}, StatusFailed, renderErr
	}

	meta := &tpl.PageMetadata{
		Title:       rendered.Title,
		SourcePath:  relPath,
		OutputPath:  outputRelPath,
		FileName:    filepath.Base(relPath),
		Format:      docFormat,
		Blocks:      rendered.Blocks,
		Body:        rendered.HTML,
		BlockCount:  len(rendered.Blocks),
		ModTime:     modTime,
		ContentHash: sourceHash,
		GeneratedBy: p.generatedBy,
	}
	var page bytes.Buffer
	if execErr := p.templateExecutor.Execute(&page, p.opts.Template, meta); execErr != nil {
		return fail(ErrTemplateExecution, execErr, fmt.Sprintf("Template execution failed: %v", execErr))
	}

	// 8. Write.
	if owner, ok := p.claimOutput(outputRelPath, relPath); !ok {
		return skip(SkipReasonOutputConflict, outputConflictDetails(outputRelPath, owner))
	}
	outputDir := filepath.Dir(absOutputPath)
	if mkErr := os.MkdirAll(outputDir, 0o755); mkErr != nil {
		return fail(ErrMkdirFailed, mkErr, fmt.Sprintf("Failed to create output directory '%s': %v", outputDir, mkErr))
	}
	if wErr := os.WriteFile(absOutputPath, page.Bytes(), 0o644); wErr != nil {
		return fail(ErrWriteFailed, wErr, fmt.Sprintf("Failed to write output file '%s': %v", absOutputPath, wErr))
	}
	outputHash := fmt.Sprintf("%x", sha256.Sum256(page.Bytes()))
	logger.Info("Output file written", slog.String("outputPath", outputRelPath), slog.Int("blocks", meta.BlockCount))

	// 9. Cache update.
	if p.opts.CacheEnabled && p.configHash != "" {
		if upErr := p.cacheManager.Update(relPath, modTime, sourceHash, p.configHash, cache.Output{
			Hash:       outputHash,
			Format:     string(docFormat),
			BlockCount: meta.BlockCount,
		}); upErr != nil {
			logger.Warn("Failed to update cache entry", slog.String("error", upErr.Error()))
		}
	}

	return FileInfo{
		Path:        relPath,
		OutputPath:  outputRelPath,
		Format:      docFormat,
		Encoding:    decoded.Encoding,
		BlockCount:  meta.BlockCount,
		SizeBytes:   size,
		ModTime:     modTime,
		CacheStatus: cacheStatus,
		DurationMs:  time.Since(startTime).Milliseconds(),
	}, StatusSuccess, nil
}

// calculateConfigHash hashes every option that changes rendered output, so
// a configuration change invalidates the cache.
// claimOutput reserves outputRelPath for relPath for the rest of the run.
// It fails, returning the owner, when another source already holds it.
func (p *NotebookProcessor) claimOutput(outputRelPath, relPath string) (owner string, ok bool) {
	p.outputsMu.Lock()
	defer p.outputsMu.Unlock()
	if owner, taken := p.outputs[outputRelPath]; taken && owner != relPath {
		return owner, false
	}
	p.outputs[outputRelPath] = relPath
	return relPath, true
}

func outputConflictDetails(outputRelPath, owner string) string {
	return fmt.Sprintf("Output %s is already rendered from %s", outputRelPath, owner)
}

func calculateConfigHash(opts *Options) (string, error) {
	h := sha256.New()
	add := func(h hash.Hash, key, value string) {
		h.Write([]byte(key + ":" + value + ";"))
	}

	switch {
	case opts.TemplatePath != "":
		content, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return "", fmt.Errorf("read template '%s': %w", opts.TemplatePath, err)
		}
		add(h, "Template", fmt.Sprintf("%x", sha256.Sum256(content)))
	case opts.Template != nil:
		add(h, "Template", "custom:"+opts.Template.Name())
	default:
		add(h, "Template", "embedded-default")
	}

	add(h, "BinaryMode", string(opts.BinaryMode))
	add(h, "LargeFileMode", string(opts.LargeFileMode))
	add(h, "DefaultEncoding", opts.DefaultEncoding)
	add(h, "MarkupDigest", opts.Markup.Digest)
	add(h, "AllowInlineHTML", fmt.Sprint(opts.Markup.AllowInlineHTML))
	add(h, "ValidateSchema", fmt.Sprint(opts.Markup.ValidateSchema))

	exts := make([]string, 0, len(opts.FormatMappings))
	for ext := range opts.FormatMappings {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		add(h, "FormatMapping_"+ext, opts.FormatMappings[ext])
	}

	version := opts.AppVersion
	if version == "" {
		version = "dev"
	}
	add(h, "AppVersion", version)

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// generateOutputPath maps a slash-separated source path to its page path:
// the extension is replaced with .html, or .html is appended when there is
// none ("lesson" and ".hidden" keep their full name).
func generateOutputPath(relPath string) string {
	if relPath == "" || relPath == "." {
		return ""
	}
	dir, base := pathSplit(relPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" || stem == "" {
		return relPath + OutputExtension
	}
	return dir + stem + OutputExtension
}

func pathSplit(p string) (dir, base string) {
	i := strings.LastIndex(p, "/")
	return p[:i+1], p[i+1:]
}
