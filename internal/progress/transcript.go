package progress

import (
	"context"
	"log/slog"
)

// Transcript writes agent output lines to log at debug level, tagged with
// the run, task and stage they came from. Other kinds are ignored; the
// engine logs its own lifecycle.
func Transcript(log *slog.Logger) Emitter {
	return EmitterFunc(func(ev Event) {
		if ev.Kind != KindOutputLine || !log.Enabled(context.Background(), slog.LevelDebug) {
			return
		}
		log.Debug("agent output",
			"run_id", ev.RunID,
			"task_id", ev.TaskID,
			"stage", ev.Stage,
			"stream", ev.Stream,
			"line", ev.Line,
		)
	})
}
