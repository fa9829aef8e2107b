package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// lineHandler реализует slog-обработчик, который пишет одну плоскую JSON-строку на
// запись: время и все атрибуты на верхнем уровне. Уровень и сообщение не
// пишутся.
type lineHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	attrs []slog.Attr
}

func newLineHandler(out io.Writer) *lineHandler {
	return &lineHandler{mu: &sync.Mutex{}, out: out}
}

func (h *lineHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]any, r.NumAttrs()+len(h.attrs)+1)
	fields["time"] = r.Time.UTC().Format(time.RFC3339)

	add := func(a slog.Attr) bool {
		if a.Key != "" && a.Value.Any() != nil {
			fields[a.Key] = a.Value.Any()
		}
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)

	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(append(data, '\n'))
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &lineHandler{mu: h.mu, out: h.out, attrs: merged}
}

// WithGroup не нужен для плоских строк журнала, группы игнорируются.
func (h *lineHandler) WithGroup(string) slog.Handler { return h }

// JSONRecorder пишет записи журнала в JSONL-файл, который ротирует и сжимает
// lumberjack.
type JSONRecorder struct {
	file   *lumberjack.Logger
	logger *slog.Logger
}

// NewJSONRecorder открывает журнал.
// Параметры:
// - file: путь к JSONL-файлу
// - maxSize: размер в МБ до ротации
// - maxBackups: количество хранимых ротированных файлов
func NewJSONRecorder(file string, maxSize, maxBackups int) *JSONRecorder {
	lj := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return newJSONRecorder(lj, lj)
}

func newJSONRecorder(out io.Writer, file *lumberjack.Logger) *JSONRecorder {
	return &JSONRecorder{
		file:   file,
		logger: slog.New(newLineHandler(out)),
	}
}

// Record добавляет одну запись.
func (r *JSONRecorder) Record(kind string, evaluationID int64, runID string, payload any) {
	r.logger.Info("", "kind", kind, "evaluation_id", evaluationID, "run_id", runID, "payload", payload)
}

// Close сбрасывает буфер и закрывает текущий файл.
func (r *JSONRecorder) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
