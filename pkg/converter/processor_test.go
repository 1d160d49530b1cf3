package converter_test

import (
	"context"
	"errors"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/langnotes/internal/testutil"
	"github.com/stackvity/langnotes/pkg/converter"
	"github.com/stackvity/langnotes/pkg/converter/cache"
	"github.com/stackvity/langnotes/pkg/converter/encoding"
	"github.com/stackvity/langnotes/pkg/converter/format"
	tpl "github.com/stackvity/langnotes/pkg/converter/template"
	"github.com/stackvity/langnotes/pkg/notes"
)

const lessonJSON = `{
  "title": "Lektion 1",
  "blocks": [
    {"id": "d1", "type": "dialogue", "content": "Anna: Hallo!\nBen: Hi <3", "order": 2},
    {"id": "r1", "type": "rule", "content": "* Begrüßung\nSo grüßt man.", "order": 1}
  ]
}`

// newProcessorOptions returns Options with the real default dependencies,
// as the engine would fill them in.
func newProcessorOptions(t *testing.T) *converter.Options {
	t.Helper()
	handler, _ := testutil.NewTestLogger(t)
	detector, err := format.NewEnryDetector(nil)
	require.NoError(t, err)
	return &converter.Options{
		InputPath:          t.TempDir(),
		OutputPath:         t.TempDir(),
		AppVersion:         "v1.0.0",
		Logger:             handler,
		OnErrorMode:        converter.OnErrorContinue,
		BinaryMode:         converter.BinarySkip,
		LargeFileMode:      converter.LargeFileSkip,
		LargeFileThreshold: 1 << 20,
		Markup:             converter.MarkupConfig{ValidateSchema: true},
		FormatDetector:     detector,
		EncodingHandler:    encoding.NewCharsetHandler(""),
		TemplateExecutor:   tpl.NewHTMLExecutor(),
		CacheManager:       &testutil.MockCacheManager{},
	}
}

func newProcessor(t *testing.T, opts *converter.Options) converter.FileProcessor {
	t.Helper()
	p, err := converter.NewNotebookProcessor(opts, opts.Logger)
	require.NoError(t, err)
	return p
}

func writeInput(t *testing.T, opts *converter.Options, rel, content string) string {
	t.Helper()
	abs := filepath.Join(opts.InputPath, filepath.FromSlash(rel))
	testutil.CreateDummyFile(t, abs, content)
	return abs
}

func TestNotebookProcessor_RendersJSONNotebook(t *testing.T) {
	opts := newProcessorOptions(t)
	abs := writeInput(t, opts, "a1/lesson1.json", lessonJSON)

	result, status, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSuccess, status)

	info, ok := result.(converter.FileInfo)
	require.True(t, ok, "got %T", result)
	assert.Equal(t, "a1/lesson1.json", info.Path)
	assert.Equal(t, "a1/lesson1.html", info.OutputPath)
	assert.Equal(t, notes.FormatJSON, info.Format)
	assert.Equal(t, 2, info.BlockCount)
	assert.Equal(t, converter.CacheStatusDisabled, info.CacheStatus)

	page, err := os.ReadFile(filepath.Join(opts.OutputPath, "a1", "lesson1.html"))
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "<title>Lektion 1</title>")
	assert.Contains(t, html, `data-block-id="r1"`)
	assert.Contains(t, html, "Hi &lt;3")
	assert.Less(t, strings.Index(html, `data-block-id="r1"`), strings.Index(html, `data-block-id="d1"`), "blocks are ordered")
	assert.Contains(t, html, `<meta name="generator" content="langnotes v1.0.0">`)
}

func TestNotebookProcessor_YAMLTitleDefaultsToFileName(t *testing.T) {
	opts := newProcessorOptions(t)
	abs := writeInput(t, opts, "verbs.yaml", "- type: example\n  content: \"** ich gehe\"\n")

	result, _, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, notes.FormatYAML, result.(converter.FileInfo).Format)

	page, err := os.ReadFile(filepath.Join(opts.OutputPath, "verbs.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<title>verbs</title>")
}

func TestNotebookProcessor_Skips(t *testing.T) {
	testCases := []struct {
		name       string
		file       string
		content    string
		setup      func(*converter.Options)
		wantReason string
	}{
		{
			name:       "binary",
			file:       "image.json",
			content:    "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR",
			wantReason: converter.SkipReasonBinary,
		},
		{
			name:       "large",
			file:       "huge.json",
			content:    "[" + strings.Repeat(" ", 64) + "]",
			setup:      func(o *converter.Options) { o.LargeFileThreshold = 16 },
			wantReason: converter.SkipReasonLarge,
		},
		{
			name:       "unsupported format",
			file:       "notes.txt",
			content:    "just some text",
			wantReason: converter.SkipReasonUnsupported,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := newProcessorOptions(t)
			if tc.setup != nil {
				tc.setup(opts)
			}
			abs := writeInput(t, opts, tc.file, tc.content)

			result, status, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
			require.NoError(t, err)
			assert.Equal(t, converter.StatusSkipped, status)
			skipped, ok := result.(converter.SkippedInfo)
			require.True(t, ok, "got %T", result)
			assert.Equal(t, tc.wantReason, skipped.Reason)
			assert.Equal(t, tc.file, skipped.Path)
		})
	}
}

func TestNotebookProcessor_Failures(t *testing.T) {
	testCases := []struct {
		name    string
		file    string
		content string
		setup   func(*converter.Options)
		wantErr []error
	}{
		{
			name:    "binary in error mode",
			file:    "image.json",
			content: "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR",
			setup:   func(o *converter.Options) { o.BinaryMode = converter.BinaryError },
			wantErr: []error{converter.ErrBinaryFile},
		},
		{
			name:    "large in error mode",
			file:    "huge.json",
			content: "[" + strings.Repeat(" ", 64) + "]",
			setup: func(o *converter.Options) {
				o.LargeFileThreshold = 16
				o.LargeFileMode = converter.LargeFileError
			},
			wantErr: []error{converter.ErrLargeFile},
		},
		{
			name:    "malformed json",
			file:    "broken.json",
			content: `[{"type": "rule",`,
			wantErr: []error{converter.ErrDecodeFailed, notes.ErrInvalidDocument},
		},
		{
			name:    "unknown block type",
			file:    "odd.json",
			content: `[{"id": "x", "type": "poem", "content": "a"}]`,
			wantErr: []error{converter.ErrDecodeFailed},
		},
		{
			name:    "duplicate ids",
			file:    "dup.json",
			content: `[{"id": "x", "type": "rule"}, {"id": "x", "type": "rule"}]`,
			wantErr: []error{converter.ErrDecodeFailed, notes.ErrDuplicateBlockID},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := newProcessorOptions(t)
			if tc.setup != nil {
				tc.setup(opts)
			}
			abs := writeInput(t, opts, tc.file, tc.content)

			result, status, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
			require.Error(t, err)
			assert.Equal(t, converter.StatusFailed, status)
			for _, want := range tc.wantErr {
				assert.ErrorIs(t, err, want)
			}
			info, ok := result.(converter.ErrorInfo)
			require.True(t, ok, "got %T", result)
			assert.Equal(t, tc.file, info.Path)
			assert.False(t, info.IsFatal, "continue mode never marks errors fatal")
			assert.NoFileExists(t, filepath.Join(opts.OutputPath, strings.TrimSuffix(tc.file, ".json")+".html"))
		})
	}
}

func TestNotebookProcessor_StopModeMarksErrorsFatal(t *testing.T) {
	opts := newProcessorOptions(t)
	opts.OnErrorMode = converter.OnErrorStop
	abs := writeInput(t, opts, "broken.yaml", "blocks: [\n")

	result, _, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
	require.Error(t, err)
	assert.True(t, result.(converter.ErrorInfo).IsFatal)
}

func TestNotebookProcessor_StatFailure(t *testing.T) {
	opts := newProcessorOptions(t)
	_, status, err := newProcessor(t, opts).ProcessFile(context.Background(), filepath.Join(opts.InputPath, "gone.json"))
	assert.Equal(t, converter.StatusFailed, status)
	assert.ErrorIs(t, err, converter.ErrStatFailed)
}

func TestNotebookProcessor_CacheHitAndMiss(t *testing.T) {
	opts := newProcessorOptions(t)
	opts.CacheEnabled = true
	cacheMgr := &testutil.MockCacheManager{}
	opts.CacheManager = cacheMgr
	abs := writeInput(t, opts, "lesson.json", lessonJSON)
	info, err := os.Stat(abs)
	require.NoError(t, err)

	// First run: miss, render, update.
	cacheMgr.On("Check", "lesson.json", info.ModTime(), mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(false, cache.Entry{}).Once()
	cacheMgr.On("Update", "lesson.json", info.ModTime(), mock.AnythingOfType("string"), mock.AnythingOfType("string"),
		mock.MatchedBy(func(out cache.Output) bool { return out.Format == "json" && out.BlockCount == 2 && out.Hash != "" })).
		Return(nil).Once()

	p := newProcessor(t, opts)
	result, status, err := p.ProcessFile(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSuccess, status)
	assert.Equal(t, converter.CacheStatusMiss, result.(converter.FileInfo).CacheStatus)

	// Second run: hit, nothing rendered.
	cacheMgr.On("Check", "lesson.json", info.ModTime(), mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(true, cache.Entry{OutputHash: "abc", Format: "json", BlockCount: 2}).Once()
	result, status, err = p.ProcessFile(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusCached, status)
	hit := result.(converter.FileInfo)
	assert.Equal(t, converter.CacheStatusHit, hit.CacheStatus)
	assert.Equal(t, "lesson.html", hit.OutputPath)
	assert.Equal(t, notes.FormatJSON, hit.Format)
	assert.Equal(t, 2, hit.BlockCount, "block count comes from the cache entry")

	cacheMgr.AssertExpectations(t)
}

func TestNotebookProcessor_SharedOutputPathIsClaimedOnce(t *testing.T) {
	opts := newProcessorOptions(t)
	fromJSON := writeInput(t, opts, "lesson.json", `[{"id":"j","type":"rule","content":"FROM JSON"}]`)
	fromYAML := writeInput(t, opts, "lesson.yaml", "- id: y\n  type: rule\n  content: FROM YAML\n")
	p := newProcessor(t, opts)

	_, status, err := p.ProcessFile(context.Background(), fromJSON)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSuccess, status)

	result, status, err := p.ProcessFile(context.Background(), fromYAML)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSkipped, status)
	skipped := result.(converter.SkippedInfo)
	assert.Equal(t, "lesson.yaml", skipped.Path)
	assert.Equal(t, converter.SkipReasonOutputConflict, skipped.Reason)
	assert.Equal(t, "Output lesson.html is already rendered from lesson.json", skipped.Details)

	page, err := os.ReadFile(filepath.Join(opts.OutputPath, "lesson.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "FROM JSON")
	assert.NotContains(t, string(page), "FROM YAML")

	_, status, err = p.ProcessFile(context.Background(), fromJSON)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSuccess, status, "the owner may render its page again")
}

func TestNotebookProcessor_CacheHitWithMissingOutputRerenders(t *testing.T) {
	opts := newProcessorOptions(t)
	opts.CacheEnabled = true
	cacheMgr := &testutil.MockCacheManager{}
	opts.CacheManager = cacheMgr
	abs := writeInput(t, opts, "lesson.json", lessonJSON)

	cacheMgr.On("Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, cache.Entry{OutputHash: "stale"})
	cacheMgr.On("Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, status, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSuccess, status)
	assert.FileExists(t, filepath.Join(opts.OutputPath, "lesson.html"))
}

func TestNotebookProcessor_IgnoreCacheRead(t *testing.T) {
	opts := newProcessorOptions(t)
	opts.CacheEnabled = true
	opts.IgnoreCacheRead = true
	cacheMgr := &testutil.MockCacheManager{}
	opts.CacheManager = cacheMgr
	abs := writeInput(t, opts, "lesson.json", lessonJSON)
	cacheMgr.On("Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, status, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSuccess, status)
	cacheMgr.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cacheMgr.AssertExpectations(t)
}

func TestNotebookProcessor_ConfigChangesInvalidateCache(t *testing.T) {
	var hashes []string
	for _, inline := range []bool{false, true} {
		opts := newProcessorOptions(t)
		opts.CacheEnabled = true
		opts.Markup.AllowInlineHTML = inline
		cacheMgr := &testutil.MockCacheManager{}
		opts.CacheManager = cacheMgr
		abs := writeInput(t, opts, "lesson.json", lessonJSON)

		cacheMgr.On("Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, cache.Entry{})
		cacheMgr.On("Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { hashes = append(hashes, args.String(3)) }).
			Return(nil)

		_, _, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
		require.NoError(t, err)
	}
	require.Len(t, hashes, 2)
	assert.NotEqual(t, hashes[0], hashes[1])
}

func TestNotebookProcessor_TemplateFailure(t *testing.T) {
	opts := newProcessorOptions(t)
	exec := &testutil.MockTemplateExecutor{}
	exec.On("Execute", mock.Anything, mock.Anything, mock.AnythingOfType("*template.PageMetadata")).Return(errors.New("boom"))
	opts.TemplateExecutor = exec
	abs := writeInput(t, opts, "lesson.json", lessonJSON)

	_, status, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
	assert.Equal(t, converter.StatusFailed, status)
	assert.ErrorIs(t, err, converter.ErrTemplateExecution)
}

func TestNotebookProcessor_CustomTemplateMetadata(t *testing.T) {
	opts := newProcessorOptions(t)
	opts.Template = template.Must(template.New("page").Funcs(tpl.Funcs).Parse(
		`{{ .SourcePath }}|{{ .OutputPath }}|{{ .Format }}|{{ .BlockCount }}|{{ range .Blocks }}{{ .ID }},{{ end }}`))
	abs := writeInput(t, opts, "b1/dialog.json", lessonJSON)

	_, _, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
	require.NoError(t, err)
	page, err := os.ReadFile(filepath.Join(opts.OutputPath, "b1", "dialog.html"))
	require.NoError(t, err)
	assert.Equal(t, "b1/dialog.json|b1/dialog.html|json|2|r1,d1,", string(page))
}

func TestNotebookProcessor_FormatMappingOverride(t *testing.T) {
	opts := newProcessorOptions(t)
	detector, err := format.NewEnryDetector(map[string]string{"note": "yaml"})
	require.NoError(t, err)
	opts.FormatDetector = detector
	abs := writeInput(t, opts, "lesson.note", "- type: rule\n  content: hi\n")

	result, _, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, "lesson.html", result.(converter.FileInfo).OutputPath)
}

func TestNotebookProcessor_Cancelled(t *testing.T) {
	opts := newProcessorOptions(t)
	abs := writeInput(t, opts, "lesson.json", lessonJSON)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, status, err := newProcessor(t, opts).ProcessFile(ctx, abs)
	assert.Equal(t, converter.StatusFailed, status)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewNotebookProcessor_RequiresDependencies(t *testing.T) {
	handler, _ := testutil.NewTestLogger(t)
	_, err := converter.NewNotebookProcessor(&converter.Options{Logger: handler}, handler)
	assert.ErrorIs(t, err, converter.ErrConfigValidation)
}

func TestNotebookProcessor_WriteFailure(t *testing.T) {
	opts := newProcessorOptions(t)
	abs := writeInput(t, opts, "sub/lesson.json", lessonJSON)
	// A file where the output subdirectory should go.
	require.NoError(t, os.WriteFile(filepath.Join(opts.OutputPath, "sub"), []byte("x"), 0o644))

	_, status, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
	assert.Equal(t, converter.StatusFailed, status)
	assert.ErrorIs(t, err, converter.ErrMkdirFailed)
}

func TestNotebookProcessor_ReportsDuration(t *testing.T) {
	opts := newProcessorOptions(t)
	abs := writeInput(t, opts, "lesson.json", lessonJSON)
	before := time.Now()
	result, _, err := newProcessor(t, opts).ProcessFile(context.Background(), abs)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.(converter.FileInfo).DurationMs, time.Since(before).Milliseconds())
}
