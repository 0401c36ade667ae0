package flags

import (
	"io"

	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"

	"github.com/jsbundle/jsbundle/internal/logging"
)

const DefaultConfig = "jsbundle.yaml"

// AddConfig registers the repeatable --config flag.
func AddConfig(fs *pflag.FlagSet, paths *[]string) {
	fs.StringSliceVarP(paths, "config", "c", []string{DefaultConfig}, "Path to a configuration file or directory (repeatable, merged in order)")
}

type Logging struct {
	Level  logging.Level
	Format logging.Format
}

// AddLogging registers --log-level and --log-format.
func AddLogging(fs *pflag.FlagSet, l *Logging) {
	l.Level = logging.Info
	l.Format = logging.Text
	fs.Var(enumflag.New(&l.Level, "level", logging.Levels, enumflag.EnumCaseInsensitive), "log-level", "Log level: debug, info, warn or error")
	fs.Var(enumflag.New(&l.Format, "format", logging.Formats, enumflag.EnumCaseInsensitive), "log-format", "Log format: text or json")
}

func (l Logging) Logger(w io.Writer) *logging.Logger {
	return logging.NewLogger(logging.Config{Level: l.Level, Format: l.Format, Output: w})
}
