package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"
)

// LogLevel уровни логирования
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

var logLevelNames = map[LogLevel]string{
	LogLevelTrace: "TRACE",
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
	LogLevelFatal: "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel преобразует строку конфигурации ("debug", "INFO", ...) в LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	if want == "WARNING" {
		want = "WARN"
	}
	for level, name := range logLevelNames {
		if name == want {
			return level, nil
		}
	}
	return LogLevelInfo, fmt.Errorf("неизвестный уровень логирования: %q", s)
}

// LogEntry структура записи лога
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`

	// Контекст конвейера
	RunID   string `json:"run_id,omitempty"`
	Element string `json:"element,omitempty"`

	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`

	Fields map[string]interface{} `json:"fields,omitempty"`

	Error string `json:"error,omitempty"`
}

// StructuredLogger интерфейс для структурированного логирования
type StructuredLogger interface {
	Trace(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// LogError логирует ошибку как отдельное поле записи
	LogError(ctx context.Context, err error, msg string, fields ...Field)

	WithComponent(component string) StructuredLogger
	WithFields(fields ...Field) StructuredLogger

	SetLevel(level LogLevel)
	IsEnabled(level LogLevel) bool
}

// Field представляет поле лога
type Field struct {
	Key   string
	Value interface{}
}

// Helpers для создания полей
func String(key, value string) Field                 { return Field{key, value} }
func Int(key string, value int) Field                { return Field{key, value} }
func Uint(key string, value uint) Field              { return Field{key, value} }
func Int64(key string, value int64) Field            { return Field{key, value} }
func Bool(key string, value bool) Field              { return Field{key, value} }
func Duration(key string, value time.Duration) Field { return Field{key, value.String()} }
func Any(key string, value interface{}) Field        { return Field{key, value} }
func Err(err error) Field                            { return Field{"error", err} }

type contextKey string

const (
	runIDKey   contextKey = "run_id"
	elementKey contextKey = "element"
)

// WithRunID кладет идентификатор запуска конвейера в контекст
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithElement кладет имя элемента, к которому относится запись, в контекст
func WithElement(ctx context.Context, element string) context.Context {
	return context.WithValue(ctx, elementKey, element)
}

// Options настройки DefaultLogger
type Options struct {
	Level         LogLevel
	Output        io.Writer
	JSON          bool
	IncludeCaller bool
}

// DefaultLogger реализация StructuredLogger
type DefaultLogger struct {
	mu        *sync.RWMutex
	level     *LogLevel
	output    io.Writer
	component string
	fields    map[string]interface{}

	includeCaller bool
	jsonOutput    bool
}

// New создает logger с заданными настройками
func New(opts Options) *DefaultLogger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	level := opts.Level
	return &DefaultLogger{
		mu:            &sync.RWMutex{},
		level:         &level,
		output:        opts.Output,
		fields:        make(map[string]interface{}),
		includeCaller: opts.IncludeCaller,
		jsonOutput:    opts.JSON,
	}
}

// SetLevel устанавливает минимальный уровень логирования.
// Уровень общий для всех производных логгеров.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.level = level
}

// IsEnabled проверяет, включен ли уровень логирования
func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= *l.level
}

// WithComponent создает logger с указанным компонентом
func (l *DefaultLogger) WithComponent(component string) StructuredLogger {
	child := l.clone()
	child.component = component
	return child
}

// WithFields создает logger с дополнительными полями
func (l *DefaultLogger) WithFields(fields ...Field) StructuredLogger {
	child := l.clone()
	for _, field := range fields {
		child.fields[field.Key] = field.Value
	}
	return child
}

func (l *DefaultLogger) clone() *DefaultLogger {
	return &DefaultLogger{
		mu:            l.mu,
		level:         l.level,
		output:        l.output,
		component:     l.component,
		fields:        maps.Clone(l.fields),
		includeCaller: l.includeCaller,
		jsonOutput:    l.jsonOutput,
	}
}

func (l *DefaultLogger) Trace(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LogLevelTrace, msg, nil, fields...)
}

func (l *DefaultLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LogLevelDebug, msg, nil, fields...)
}

func (l *DefaultLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LogLevelInfo, msg, nil, fields...)
}

func (l *DefaultLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LogLevelWarn, msg, nil, fields...)
}

func (l *DefaultLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LogLevelError, msg, nil, fields...)
}

// LogError логирует ошибку с дополнительной информацией
func (l *DefaultLogger) LogError(ctx context.Context, err error, msg string, fields ...Field) {
	l.log(ctx, LogLevelError, msg, err, fields...)
}

// log основной метод логирования
func (l *DefaultLogger) log(ctx context.Context, level LogLevel, msg string, err error, fields ...Field) {
	if !l.IsEnabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   msg,
		Component: l.component,
		Fields:    make(map[string]interface{}, len(l.fields)+len(fields)),
	}

	for k, v := range l.fields {
		entry.Fields[k] = v
	}
	for _, field := range fields {
		// error значения не сериализуются в JSON, храним текст
		if e, ok := field.Value.(error); ok && e != nil {
			entry.Fields[field.Key] = e.Error()
			continue
		}
		entry.Fields[field.Key] = field.Value
	}

	l.extractContextInfo(ctx, &entry)

	if l.includeCaller {
		l.addCallerInfo(&entry)
	}

	if err != nil {
		entry.Error = err.Error()
	}

	l.writeEntry(&entry)
}

// extractContextInfo извлекает информацию из контекста
func (l *DefaultLogger) extractContextInfo(ctx context.Context, entry *LogEntry) {
	if ctx == nil {
		return
	}
	if id, ok := ctx.Value(runIDKey).(string); ok {
		entry.RunID = id
	}
	if el, ok := ctx.Value(elementKey).(string); ok {
		entry.Element = el
	}
}

// addCallerInfo записывает файл и строку вызова Info/Warn/...
func (l *DefaultLogger) addCallerInfo(entry *LogEntry) {
	if _, file, line, ok := runtime.Caller(3); ok {
		entry.File = filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file))
		entry.Line = line
	}
}

// writeEntry сериализует запись и пишет ее одной операцией,
// чтобы строки из разных горутин не перемешивались
func (l *DefaultLogger) writeEntry(entry *LogEntry) {
	line := formatText(entry)
	if l.jsonOutput {
		if data, err := json.Marshal(entry); err == nil {
			line = string(append(data, '\n'))
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.output, line)
}

// formatText строка вида
//
//	2006-01-02 15:04:05.000 [INFO ] [router] <rtpbin> msg k=v error="..." (pkg/file.go:12)
func formatText(entry *LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%-5s]", entry.Timestamp.Format("2006-01-02 15:04:05.000"), entry.Level)
	if entry.Component != "" {
		fmt.Fprintf(&b, " [%s]", entry.Component)
	}
	if entry.Element != "" {
		fmt.Fprintf(&b, " <%s>", entry.Element)
	}
	b.WriteString(" " + entry.Message)
	for _, k := range slices.Sorted(maps.Keys(entry.Fields)) {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	if entry.Error != "" {
		fmt.Fprintf(&b, " error=%q", entry.Error)
	}
	if entry.File != "" {
		fmt.Fprintf(&b, " (%s:%d)", entry.File, entry.Line)
	}
	b.WriteByte('\n')
	return b.String()
}

// NoOpLogger логгер-заглушка для тестов
type NoOpLogger struct{}

func (NoOpLogger) Trace(ctx context.Context, msg string, fields ...Field)               {}
func (NoOpLogger) Debug(ctx context.Context, msg string, fields ...Field)               {}
func (NoOpLogger) Info(ctx context.Context, msg string, fields ...Field)                {}
func (NoOpLogger) Warn(ctx context.Context, msg string, fields ...Field)                {}
func (NoOpLogger) Error(ctx context.Context, msg string, fields ...Field)               {}
func (NoOpLogger) LogError(ctx context.Context, err error, msg string, fields ...Field) {}
func (NoOpLogger) WithComponent(component string) StructuredLogger                      { return NoOpLogger{} }
func (NoOpLogger) WithFields(fields ...Field) StructuredLogger                          { return NoOpLogger{} }
func (NoOpLogger) SetLevel(level LogLevel)                                              {}
func (NoOpLogger) IsEnabled(level LogLevel) bool                                        { return false }
