package instances

import (
    "context"
    "errors"
    "fmt"
    "io/fs"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"

    "mdvrp/internal/problem"
)

// DirSource reads instance files from a flat directory. Parsed instances are
// cached since they are immutable.
type DirSource struct {
    Dir string

    mu    sync.Mutex
    cache map[string]*problem.Instance
}

func NewDirSource(dir string) *DirSource {
    return &DirSource{Dir: dir, cache: map[string]*problem.Instance{}}
}

func (s *DirSource) Name() string { return "dir:" + s.Dir }

func (s *DirSource) List(ctx context.Context) ([]string, error) {
    entries, err := os.ReadDir(s.Dir)
    if err != nil {
        return nil, fmt.Errorf("list instances: %w", err)
    }
    out := []string{}
    for _, e := range entries {
        if e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasSuffix(e.Name(), ".res") {
            continue
        }
        out = append(out, e.Name())
    }
    sort.Strings(out)
    return out, nil
}

func (s *DirSource) Load(ctx context.Context, name string) (*problem.Instance, error) {
    if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
        return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
    }
    s.mu.Lock()
    if inst, ok := s.cache[name]; ok {
        s.mu.Unlock()
        return inst, nil
    }
    s.mu.Unlock()

    if err := ctx.Err(); err != nil {
        return nil, err
    }
    inst, err := problem.Load(filepath.Join(s.Dir, name))
    if err != nil {
        if errors.Is(err, fs.ErrNotExist) {
            return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
        }
        return nil, err
    }
    s.mu.Lock()
    if s.cache == nil { s.cache = map[string]*problem.Instance{} }
    s.cache[name] = inst
    s.mu.Unlock()
    return inst, nil
}
