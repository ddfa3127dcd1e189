package markup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
)

// ----------------------------- Engine ---------------------------------------

// Engine loads template units from a directory tree and renders templates by
// name. Each file is one unit; template names must be unique across files.
type Engine struct {
	mu        sync.RWMutex
	fsys      fs.FS
	dir       string
	ext       string
	cache     *Cache
	files     map[string]*Set
	templates map[string]*Template
	watcher   *Watcher
	callbacks []ReloadCallback
}

// EngineOptions collects the settings applied by EngineOption values.
type EngineOptions struct {
	ext       string
	cacheSize int
	parseOpts []ParseOption
	watch     bool
	cfg       *Config
}

type EngineOption func(*EngineOptions)

// WithExtension selects the files to load, ".mu" by default.
func WithExtension(ext string) EngineOption {
	return func(o *EngineOptions) { o.ext = ext }
}

// WithParseOptions applies opts to every unit the engine compiles.
func WithParseOptions(opts ...ParseOption) EngineOption {
	return func(o *EngineOptions) { o.parseOpts = append(o.parseOpts, opts...) }
}

// WithConfig takes the extension, cache size and watch settings from cfg.
func WithConfig(cfg *Config) EngineOption {
	return func(o *EngineOptions) {
		o.cfg = cfg
		o.ext = cfg.Extension
		o.cacheSize = cfg.CacheMaxSize
		o.watch = cfg.Watch
	}
}

// NewEngine loads every template unit in fsys.
func NewEngine(fsys fs.FS, opts ...EngineOption) (*Engine, error) {
	eo := EngineOptions{ext: ".mu", cacheSize: DefaultCacheSize}
	for _, o := range opts {
		o(&eo)
	}
	e := &Engine{
		fsys:  fsys,
		ext:   eo.ext,
		cache: NewCache(eo.cacheSize, eo.parseOpts...),
	}
	if err := e.Load(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewEngineDir loads the templates under dir and, when the configuration
// asks for it, reloads them as files change.
func NewEngineDir(dir string, opts ...EngineOption) (*Engine, error) {
	e, err := NewEngine(os.DirFS(dir), opts...)
	if err != nil {
		return nil, err
	}
	e.dir = dir
	eo := EngineOptions{}
	for _, o := range opts {
		o(&eo)
	}
	if eo.watch {
		debounce := DefaultConfig().WatchDebounce
		if eo.cfg != nil {
			debounce = eo.cfg.WatchDebounce
		}
		if _, err := e.Watch(debounce); err != nil {
			return nil, fmt.Errorf("failed to watch directory: %w", err)
		}
	}
	return e, nil
}

// Load (re)compiles every unit. On error the previously loaded templates
// stay in place.
func (e *Engine) Load() error {
	files := make(map[string]*Set)
	templates := make(map[string]*Template)
	owner := make(map[string]string)
	err := fs.WalkDir(e.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, e.ext) {
			return nil
		}
		src, err := fs.ReadFile(e.fsys, p)
		if err != nil {
			return fmt.Errorf("reading template %q: %w", p, err)
		}
		set, err := e.cache.Compile(string(src))
		if err != nil {
			return fmt.Errorf("compiling template %q: %w", p, err)
		}
		for _, t := range set.Templates() {
			if prev, dup := owner[t.Name()]; dup {
				return fmt.Errorf("template %s declared in both %q and %q", t.Name(), prev, p)
			}
			owner[t.Name()] = p
			templates[t.Name()] = t
		}
		files[p] = set
		return nil
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.files = files
	e.templates = templates
	e.mu.Unlock()
	log().Debug().Int("files", len(files)).Int("templates", len(templates)).Msg("engine loaded")
	return nil
}

// Lookup returns the named template, or nil.
func (e *Engine) Lookup(name string) *Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.templates[name]
}

// Templates lists the loaded template names, sorted.
func (e *Engine) Templates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Files lists the loaded unit paths, sorted.
func (e *Engine) Files() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	paths := make([]string, 0, len(e.files))
	for p := range e.files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Render renders the named template with data.
func (e *Engine) Render(w io.Writer, name string, data any) error {
	t := e.Lookup(name)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	return t.Render(w, data)
}

func (e *Engine) RenderString(name string, data any) (string, error) {
	t := e.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	return t.RenderString(data)
}

// OnReload registers fn to run after every reload attempt.
func (e *Engine) OnReload(fn ReloadCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = append(e.callbacks, fn)
}

func (e *Engine) notify(file string, err error) {
	e.mu.RLock()
	callbacks := slices.Clone(e.callbacks)
	e.mu.RUnlock()
	for _, fn := range callbacks {
		fn(file, err)
	}
}

// Close stops watching for changes.
func (e *Engine) Close() error {
	e.mu.Lock()
	w := e.watcher
	e.watcher = nil
	e.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func (e *Engine) matches(name string) bool {
	return strings.HasSuffix(path.Base(name), e.ext)
}
