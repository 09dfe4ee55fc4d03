package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Remote  RemoteConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const defaultLogFile = "./reminderd.log"

// Service owns the sinks behind every Logger it hands out and swaps them on
// Apply without invalidating those loggers.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Pointer[zerolog.Logger]

	file     *os.File
	filePath string

	remote *remote
}

// New builds the service from cfg and returns it with a root logger.
func New(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{remote: newRemote()}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() *zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return zl
	}
	nop := zerolog.Nop()
	return &nop
}

// SetRemoteSink installs the destination for forwarded lines. Lines logged
// before a sink is set are not buffered.
func (s *Service) SetRemoteSink(sink RemoteSink) { s.remote.setSink(sink) }

// Apply rebuilds the writer chain. The log file is only reopened when its
// path changes.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stdout))
	}
	if w := s.fileWriter(cfg.File); w != nil {
		writers = append(writers, w)
	}
	s.remote.configure(cfg.Remote)
	if cfg.Remote.Enabled {
		writers = append(writers, s.remote)
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// fileWriter is called with s.mu held.
func (s *Service) fileWriter(fc FileConfig) io.Writer {
	if !fc.Enabled {
		s.closeFile()
		return nil
	}
	path := strings.TrimSpace(fc.Path)
	if path == "" {
		path = defaultLogFile
	}
	if s.file != nil && s.filePath == path {
		return zerolog.SyncWriter(s.file)
	}
	s.closeFile()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		return nil
	}
	s.file, s.filePath = f, path
	return zerolog.SyncWriter(f)
}

func (s *Service) closeFile() {
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file, s.filePath = nil, ""
}

// Close stops remote forwarding and closes the log file. Loggers keep working
// against the console until the process exits.
func (s *Service) Close() error {
	s.remote.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFile()
	zl := zerolog.New(consoleWriter(os.Stderr)).Level(parseLevel(s.cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
	s.root.Store(&zl)
	return nil
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}
