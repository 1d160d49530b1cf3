// Package testutil provides testify mocks for the interfaces of
// pkg/converter and its subpackages.
package testutil

import (
	"context"
	"html/template"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/stackvity/langnotes/pkg/converter"
	"github.com/stackvity/langnotes/pkg/converter/cache"
	"github.com/stackvity/langnotes/pkg/converter/encoding"
	tpl "github.com/stackvity/langnotes/pkg/converter/template"
	"github.com/stackvity/langnotes/pkg/markup/palette"
	"github.com/stackvity/langnotes/pkg/notes"
)

// MockCacheManager mocks cache.CacheManager. Tests that record calls from
// several workers must synchronise that state themselves.
type MockCacheManager struct {
	mock.Mock
}

func (m *MockCacheManager) Load(cachePath string) error {
	return m.Called(cachePath).Error(0)
}

func (m *MockCacheManager) Check(relPath string, modTime time.Time, sourceHash, configHash string) (hit bool, entry cache.Entry) {
	args := m.Called(relPath, modTime, sourceHash, configHash)
	hit, _ = args.Get(0).(bool)
	entry, _ = args.Get(1).(cache.Entry)
	return
}

func (m *MockCacheManager) Update(relPath string, modTime time.Time, sourceHash, configHash string, out cache.Output) error {
	return m.Called(relPath, modTime, sourceHash, configHash, out).Error(0)
}

func (m *MockCacheManager) Persist(cachePath string) error {
	return m.Called(cachePath).Error(0)
}

// MockFormatDetector mocks format.Detector.
type MockFormatDetector struct {
	mock.Mock
}

func (m *MockFormatDetector) Detect(content []byte, path string) (notes.Format, bool) {
	args := m.Called(content, path)
	f, _ := args.Get(0).(notes.Format)
	return f, args.Bool(1)
}

// MockEncodingHandler mocks encoding.EncodingHandler.
type MockEncodingHandler struct {
	mock.Mock
}

func (m *MockEncodingHandler) Decode(content []byte) (encoding.Result, error) {
	args := m.Called(content)
	res, _ := args.Get(0).(encoding.Result)
	return res, args.Error(1)
}

func (m *MockEncodingHandler) IsBinary(content []byte) bool {
	return m.Called(content).Bool(0)
}

// MockTemplateExecutor mocks template.TemplateExecutor. Configure a Run
// function to write page content.
type MockTemplateExecutor struct {
	mock.Mock
}

func (m *MockTemplateExecutor) Execute(w io.Writer, tmpl *template.Template, meta *tpl.PageMetadata) error {
	return m.Called(w, tmpl, meta).Error(0)
}

// MockColorSource mocks markup.ColorSource.
type MockColorSource struct {
	mock.Mock
}

func (m *MockColorSource) ColorOf(ctx context.Context, speaker string) (palette.RGB, error) {
	args := m.Called(ctx, speaker)
	c, _ := args.Get(0).(palette.RGB)
	return c, args.Error(1)
}

// MockFileProcessor mocks converter.FileProcessor.
type MockFileProcessor struct {
	mock.Mock
}

func (m *MockFileProcessor) ProcessFile(ctx context.Context, absFilePath string) (interface{}, converter.Status, error) {
	args := m.Called(ctx, absFilePath)
	status, _ := args.Get(1).(converter.Status)
	return args.Get(0), status, args.Error(2)
}

// MockHooks mocks converter.Hooks. Hooks are called from several
// goroutines; testify/mock records calls under its own lock.
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) OnFileDiscovered(path string) error {
	return m.Called(path).Error(0)
}

func (m *MockHooks) OnFileStatusUpdate(path string, status converter.Status, message string, duration time.Duration) error {
	return m.Called(path, status, message, duration).Error(0)
}

func (m *MockHooks) OnRunComplete(report converter.Report) error {
	return m.Called(report).Error(0)
}

// NewPermissiveHooks returns MockHooks that accept every call.
func NewPermissiveHooks() *MockHooks {
	h := &MockHooks{}
	h.On("OnFileDiscovered", mock.Anything).Return(nil).Maybe()
	h.On("OnFileStatusUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	h.On("OnRunComplete", mock.Anything).Return(nil).Maybe()
	return h
}
