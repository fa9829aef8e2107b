// Package audit ведёт журнал пакетных запусков в формате JSONL: расчёты
// скоров, запуски правил и очистки.
package audit

// Типы записей, которые пишут пакеты score и engine.
const (
	KindScoresComputed = "scores.computed"
	KindScoresCleared  = "scores.cleared"
	KindRulesRun       = "rules.run"
	KindRulesCleared   = "rules.cleared"
)

// Recorder сохраняет записи журнала. Реализации должны быть
// потокобезопасными.
type Recorder interface {
	Record(kind string, evaluationID int64, runID string, payload any)
	Close() error
}

// Nop отбрасывает все записи.
type Nop struct{}

func (Nop) Record(string, int64, string, any) {}

func (Nop) Close() error { return nil }

// OrNop возвращает r или Nop, если r равен nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
