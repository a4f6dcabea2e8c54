package instances

import (
    "context"
    "errors"
    "os"
    "path/filepath"
    "testing"
)

const tiny = "1 2 1\n50 0\n1 0 1 0 5\n2 1 0 0 5\n3 0 0\n"

func TestDirSourceListAndLoad(t *testing.T) {
    dir := t.TempDir()
    for _, name := range []string{"p02", "p01", "p01.res", ".hidden"} {
        if err := os.WriteFile(filepath.Join(dir, name), []byte(tiny), 0o644); err != nil {
            t.Fatal(err)
        }
    }
    src := NewDirSource(dir)
    names, err := src.List(context.Background())
    if err != nil { t.Fatalf("list: %v", err) }
    if len(names) != 2 || names[0] != "p01" || names[1] != "p02" {
        t.Fatalf("names = %v", names)
    }
    inst, err := src.Load(context.Background(), "p01")
    if err != nil { t.Fatalf("load: %v", err) }
    if inst.Name != "p01" || inst.NumCustomers != 2 {
        t.Fatalf("instance = %+v", Describe(inst))
    }
    again, _ := src.Load(context.Background(), "p01")
    if again != inst { t.Fatalf("expected cached instance") }
}

func TestDirSourceRejectsUnknownAndTraversal(t *testing.T) {
    src := NewDirSource(t.TempDir())
    for _, name := range []string{"nope", "../etc/passwd", "", ".."} {
        if _, err := src.Load(context.Background(), name); !errors.Is(err, ErrUnknown) {
            t.Fatalf("Load(%q) = %v, want ErrUnknown", name, err)
        }
    }
}

func TestSuite(t *testing.T) {
    s := Suite()
    if len(s) != 23 || s[0] != "p01" || s[22] != "p23" {
        t.Fatalf("suite = %v", s)
    }
}
