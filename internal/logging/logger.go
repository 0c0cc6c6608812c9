package logging

import (
	"log/slog"
	"os"
)

// Setup installs a JSON stdout logger that understands context Fields.
// Debug records are kept outside production.
func Setup(production bool) {
	slog.SetDefault(slog.New(NewContextHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: Level(production),
	}))))
}

func Level(production bool) slog.Level {
	if production {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
