package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stackvity/langnotes/pkg/converter/cache"
	"github.com/stackvity/langnotes/pkg/converter/encoding"
	"github.com/stackvity/langnotes/pkg/converter/format"
	tpl "github.com/stackvity/langnotes/pkg/converter/template"
	"github.com/stackvity/langnotes/pkg/markup/palette"
)

// ProcessorFactory creates the FileProcessor shared by all workers.
type ProcessorFactory func(opts *Options, loggerHandler slog.Handler) (FileProcessor, error)

// WalkerFactory creates the directory walker.
type WalkerFactory func(opts *Options, workerChan chan<- string, wg *sync.WaitGroup, loggerHandler slog.Handler) (*Walker, error)

// Engine runs one conversion: a walker feeds paths to a worker pool and an
// aggregator collects the results into a Report.
type Engine struct {
	opts             *Options
	logger           *slog.Logger
	cacheManager     cache.CacheManager
	processorFactory ProcessorFactory
	walkerFactory    WalkerFactory
	processor        FileProcessor
	aggregator       *reportAggregator
	ctx              context.Context
	cancelFunc       context.CancelFunc
	concurrency      int
	totalScanned     atomic.Int64
	fatalOccurred    atomic.Bool
}

// NewEngine validates opts, resolves default dependencies and loads the
// cache index.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	if opts.InputPath == "" || opts.OutputPath == "" {
		return nil, fmt.Errorf("%w: input and output paths are required", ErrConfigValidation)
	}
	if st, err := os.Stat(opts.InputPath); err != nil {
		return nil, fmt.Errorf("%w: cannot access input path '%s': %w", ErrConfigValidation, opts.InputPath, err)
	} else if !st.IsDir() {
		return nil, fmt.Errorf("%w: input path '%s' is not a directory", ErrConfigValidation, opts.InputPath)
	}
	if err := os.MkdirAll(opts.OutputPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create or access output directory '%s': %w", ErrConfigValidation, opts.OutputPath, err)
	}
	if opts.Concurrency < 0 {
		return nil, fmt.Errorf("%w: concurrency cannot be negative (%d)", ErrConfigValidation, opts.Concurrency)
	}
	if opts.LargeFileThreshold == 0 && opts.LargeFileThresholdMB > 0 {
		opts.LargeFileThreshold = opts.LargeFileThresholdMB * 1024 * 1024
	}

	// --- Dependencies ---
	if opts.ColorSource == nil {
		assigner, err := palette.NewAssigner(opts.Markup.Digest, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("%w: markup.digest: %w", ErrConfigValidation, err)
		}
		opts.ColorSource = assigner
	}
	if opts.FormatDetector == nil {
		detector, err := format.NewEnryDetector(opts.FormatMappings)
		if err != nil {
			return nil, fmt.Errorf("%w: formatMappings: %w", ErrConfigValidation, err)
		}
		opts.FormatDetector = detector
	}
	if opts.EncodingHandler == nil {
		opts.EncodingHandler = encoding.NewCharsetHandler(opts.DefaultEncoding)
	}
	if opts.TemplateExecutor == nil {
		opts.TemplateExecutor = tpl.NewHTMLExecutor()
	}

	cacheMgr, err := resolveCacheManager(&opts, logger)
	if err != nil {
		return nil, err
	}
	opts.CacheManager = cacheMgr

	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = runtime.NumCPU()
		opts.Concurrency = concurrency
		logger.Debug("Concurrency auto-detected", slog.Int("count", concurrency))
	}

	processorFactory := opts.ProcessorFactory
	if processorFactory == nil {
		processorFactory = NewNotebookProcessor
	}
	walkerFactory := opts.WalkerFactory
	if walkerFactory == nil {
		walkerFactory = NewWalker
	}

	engineCtx, cancelFunc := context.WithCancel(ctx)
	return &Engine{
		opts:             &opts,
		logger:           logger,
		cacheManager:     cacheMgr,
		processorFactory: processorFactory,
		walkerFactory:    walkerFactory,
		aggregator:       newReportAggregator(),
		ctx:              engineCtx,
		cancelFunc:       cancelFunc,
		concurrency:      concurrency,
	}, nil
}

// resolveCacheManager returns the injected manager, a NoOp manager when
// caching is off, or a file-backed manager loaded from CacheFilePath.
func resolveCacheManager(opts *Options, logger *slog.Logger) (cache.CacheManager, error) {
	if !opts.CacheEnabled {
		logger.Debug("Cache disabled, using NoOpCacheManager")
		return cache.NoOpCacheManager{}, nil
	}
	if opts.CacheFilePath == "" {
		opts.CacheFilePath = filepath.Join(opts.OutputPath, cache.FileName)
	}
	if opts.ClearCache {
		if err := os.Remove(opts.CacheFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: clear cache '%s': %w", ErrConfigValidation, opts.CacheFilePath, err)
		}
		logger.Info("Cache cleared", slog.String("path", opts.CacheFilePath))
	}

	mgr := opts.CacheManager
	if mgr == nil {
		if opts.AppVersion == "" {
			logger.Warn("AppVersion not set, using 'dev' for cache compatibility")
		}
		mgr = cache.NewFileCacheManager(opts.Logger, opts.AppVersion, opts.CacheFormat)
	}
	if err := mgr.Load(opts.CacheFilePath); err != nil {
		logger.Warn("Cache could not be loaded, continuing without it",
			slog.String("path", opts.CacheFilePath), slog.String("error", err.Error()))
		opts.CacheEnabled = false
		return cache.NoOpCacheManager{}, nil
	}
	return mgr, nil
}

// Run walks the input tree, renders every notebook and returns the report.
// The error is non-nil when the run was cancelled, the walk failed, a file
// failed in stop mode, or the cache could not be persisted.
func (e *Engine) Run() (report Report, finalErr error) {
	startTime := time.Now()
	e.logger.Info("Starting conversion run", slog.Int("concurrency", e.concurrency), slog.Bool("cacheEnabled", e.opts.CacheEnabled))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during engine run", slog.Any("panicValue", r))
			e.fatalOccurred.Store(true)
			if finalErr == nil {
				finalErr = fmt.Errorf("panic during execution: %v", r)
			}
		}
		e.cancelFunc()

		if e.opts.CacheEnabled {
			if err := e.cacheManager.Persist(e.opts.CacheFilePath); err != nil {
				e.logger.Error("Failed to persist cache index", slog.String("path", e.opts.CacheFilePath), slog.String("error", err.Error()))
				if finalErr == nil {
					finalErr = fmt.Errorf("failed to persist cache: %w", err)
				}
			}
		}

		report = e.aggregator.getReport(e.opts, startTime, e.totalScanned.Load(), e.fatalOccurred.Load())
		e.logger.Info("Conversion run finished",
			slog.Duration("duration", time.Since(startTime)),
			slog.Int("processed", report.Summary.ProcessedCount),
			slog.Int("cached", report.Summary.CachedCount),
			slog.Int("skipped", report.Summary.SkippedCount),
			slog.Int("errors", report.Summary.ErrorCount),
			slog.Bool("fatalErrorOccurred", report.Summary.FatalErrorOccurred),
		)
		if hookErr := e.opts.EventHooks.OnRunComplete(report); hookErr != nil {
			e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", hookErr.Error()))
		}
	}()

	processor, err := e.processorFactory(e.opts, e.opts.Logger)
	if err != nil {
		e.fatalOccurred.Store(true)
		return report, fmt.Errorf("processor initialization failed: %w", err)
	}
	e.processor = processor

	workerChan := make(chan string, e.concurrency)
	resultsChan := make(chan interface{}, e.concurrency)
	var wg sync.WaitGroup

	walker, err := e.walkerFactory(e.opts, workerChan, &wg, e.opts.Logger)
	if err != nil {
		e.logger.Error("Failed to initialize directory walker", slog.String("error", err.Error()))
		e.fatalOccurred.Store(true)
		return report, fmt.Errorf("walker initialization failed: %w", err)
	}

	e.startWorkers(&wg, workerChan, resultsChan)
	aggregatorDone := make(chan struct{})
	go e.aggregateResults(resultsChan, aggregatorDone)

	walkErr := walker.StartWalk(e.ctx)
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
		e.logger.Error("Directory walk failed", slog.String("error", walkErr.Error()))
		e.fatalOccurred.Store(true)
		e.cancelFunc()
	} else {
		walkErr = nil
	}

	wg.Wait()
	close(resultsChan)
	<-aggregatorDone

	switch {
	case walkErr != nil:
		finalErr = walkErr
	case e.fatalOccurred.Load():
		if first := e.aggregator.getFirstFatalError(); first != nil {
			finalErr = fmt.Errorf("processing stopped due to fatal error: %w", first)
		} else {
			finalErr = errors.New("processing stopped due to fatal error")
		}
	case e.ctx.Err() != nil:
		e.logger.Info("Conversion run cancelled", slog.String("reason", e.ctx.Err().Error()))
		e.fatalOccurred.Store(true)
		finalErr = e.ctx.Err()
	}
	return report, finalErr
}

func (e *Engine) startWorkers(wg *sync.WaitGroup, workerChan <-chan string, resultsChan chan<- interface{}) {
	e.logger.Debug("Starting worker pool", slog.Int("count", e.concurrency))
	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go e.processFilesWorker(wg, i, workerChan, resultsChan)
	}
}

func (e *Engine) processFilesWorker(wg *sync.WaitGroup, workerID int, workerChan <-chan string, resultsChan chan<- interface{}) {
	wLogger := e.logger.With(slog.Int("workerID", workerID))
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			wLogger.Error("Panic recovered in worker", slog.Any("panicValue", r))
			resultsChan <- ErrorInfo{Path: "unknown (panic)", Error: fmt.Sprintf("panic: %v", r), IsFatal: true}
			e.signalFatal()
		}
	}()
	wLogger.Debug("Worker started")

	for {
		select {
		case absPath, ok := <-workerChan:
			if !ok {
				wLogger.Debug("Worker shutting down (channel closed)")
				return
			}
			e.processOne(wLogger, absPath, resultsChan)
		case <-e.ctx.Done():
			wLogger.Debug("Worker shutting down (context cancelled)")
			return
		}
	}
}

// processOne runs the processor for one path, reports the status to the
// hooks and forwards the result to the aggregator.
func (e *Engine) processOne(wLogger *slog.Logger, absPath string, resultsChan chan<- interface{}) {
	relPath, _ := filepath.Rel(e.opts.InputPath, absPath)
	if relPath == "" || relPath == "." {
		relPath = filepath.Base(absPath)
	}
	relPath = filepath.ToSlash(relPath)

	e.hook(relPath, StatusProcessing, "", 0)
	start := time.Now()
	result, status, err := e.processor.ProcessFile(e.ctx, absPath)
	elapsed := time.Since(start)

	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		wLogger.Debug("File abandoned after cancellation", slog.String("path", relPath))
		return
	}

	switch {
	case err != nil:
		fatal := status == StatusFailed && e.opts.OnErrorMode == OnErrorStop
		info := ErrorInfo{Path: relPath, Error: err.Error()}
		if ei, ok := result.(ErrorInfo); ok {
			info = ei
		}
		info.IsFatal = fatal
		e.hook(relPath, StatusFailed, info.Error, elapsed)
		resultsChan <- info
		if fatal {
			wLogger.Info("Worker detected fatal error condition, signalling stop", slog.String("path", relPath), slog.String("error", err.Error()))
			e.signalFatal()
		}
	case result == nil:
		wLogger.Warn("Processor returned nil result and nil error", slog.String("path", relPath), slog.String("status", string(status)))
		info := ErrorInfo{Path: relPath, Error: "internal error: processor returned nil result without error", IsFatal: e.opts.OnErrorMode == OnErrorStop}
		e.hook(relPath, StatusFailed, info.Error, elapsed)
		resultsChan <- info
		if info.IsFatal {
			e.signalFatal()
		}
	default:
		message := ""
		if s, ok := result.(SkippedInfo); ok {
			message = s.Details
		}
		e.hook(relPath, status, message, elapsed)
		resultsChan <- result
	}
}

func (e *Engine) signalFatal() {
	if e.fatalOccurred.CompareAndSwap(false, true) {
		e.cancelFunc()
	}
}

func (e *Engine) hook(path string, status Status, message string, d time.Duration) {
	if err := e.opts.EventHooks.OnFileStatusUpdate(path, status, message, d); err != nil {
		e.logger.Warn("Event hook failed", slog.String("hook", "OnFileStatusUpdate"), slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (e *Engine) aggregateResults(resultsChan <-chan interface{}, done chan<- struct{}) {
	defer close(done)
	scanCount := int64(0)
	for result := range resultsChan {
		scanCount++
		switch r := result.(type) {
		case FileInfo:
			e.aggregator.addProcessed(r)
		case SkippedInfo:
			e.aggregator.addSkipped(r)
		case ErrorInfo:
			e.aggregator.addError(r)
		default:
			e.logger.Warn("Aggregator received unknown result type", slog.String("type", fmt.Sprintf("%T", result)))
		}
	}
	e.totalScanned.Store(scanCount)
	e.logger.Debug("Result aggregator finished", slog.Int64("resultsProcessed", scanCount))
}

// reportAggregator collects results from the workers.
type reportAggregator struct {
	mu             sync.Mutex
	processedFiles []FileInfo
	skippedFiles   []SkippedInfo
	errors         []ErrorInfo
	cachedCount    int
	blockCount     int
}

func newReportAggregator() *reportAggregator {
	return &reportAggregator{
		processedFiles: make([]FileInfo, 0, 128),
		skippedFiles:   make([]SkippedInfo, 0, 32),
		errors:         make([]ErrorInfo, 0, 8),
	}
}

func (a *reportAggregator) addProcessed(info FileInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.processedFiles = append(a.processedFiles, info)
	a.blockCount += info.BlockCount
	if info.CacheStatus == CacheStatusHit {
		a.cachedCount++
	}
}

func (a *reportAggregator) addSkipped(info SkippedInfo) {
	a.mu.Lock()
	a.skippedFiles = append(a.skippedFiles, info)
	a.mu.Unlock()
}

func (a *reportAggregator) addError(info ErrorInfo) {
	a.mu.Lock()
	a.errors = append(a.errors, info)
	a.mu.Unlock()
}

// getFirstFatalError returns the first error recorded as fatal, if any.
func (a *reportAggregator) getFirstFatalError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.errors {
		if e.IsFatal {
			return fmt.Errorf("fatal error processing file '%s': %s", e.Path, e.Error)
		}
	}
	return nil
}

// getReport snapshots the collected results. TotalFilesScanned counts
// results received, which is lower than files discovered after a
// cancellation.
func (a *reportAggregator) getReport(opts *Options, startTime time.Time, totalScanned int64, fatalOccurred bool) Report {
	a.mu.Lock()
	processed := append([]FileInfo(nil), a.processedFiles...)
	skipped := append([]SkippedInfo(nil), a.skippedFiles...)
	errs := append([]ErrorInfo(nil), a.errors...)
	cached, blocks := a.cachedCount, a.blockCount
	a.mu.Unlock()

	return Report{
		Summary: ReportSummary{
			InputPath:          opts.InputPath,
			OutputPath:         opts.OutputPath,
			ProfileUsed:        opts.ProfileName,
			ConfigFilePath:     opts.ConfigFilePath,
			TotalFilesScanned:  int(totalScanned),
			ProcessedCount:     len(processed),
			CachedCount:        cached,
			SkippedCount:       len(skipped),
			ErrorCount:         len(errs),
			BlockCount:         blocks,
			FatalErrorOccurred: fatalOccurred,
			DurationSeconds:    time.Since(startTime).Seconds(),
			CacheEnabled:       opts.CacheEnabled,
			Concurrency:        opts.Concurrency,
			Timestamp:          time.Now().UTC(),
			SchemaVersion:      ReportSchemaVersion,
		},
		ProcessedFiles: processed,
		SkippedFiles:   skipped,
		Errors:         errs,
	}
}
