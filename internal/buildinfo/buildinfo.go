package buildinfo

import (
    "fmt"
    "runtime"
    "sync"

    "github.com/shirou/gopsutil/cpu"
    "github.com/shirou/gopsutil/host"
    "github.com/shirou/gopsutil/mem"
)

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// SysInfo describes the machine a run was executed on.
type SysInfo struct {
    Platform string `json:"platform"`
    CPU      string `json:"cpu"`
    Cores    int    `json:"cores"`
    RAM      string `json:"ram"`
}

var (
    sysOnce sync.Once
    sys     SysInfo
)

// System reads the host once; fields that cannot be read fall back to runtime values.
func System() SysInfo {
    sysOnce.Do(func() {
        sys = SysInfo{Platform: runtime.GOOS, CPU: runtime.GOARCH, Cores: runtime.NumCPU(), RAM: "unknown"}
        if h, err := host.Info(); err == nil && h.Platform != "" {
            sys.Platform = h.Platform + " " + h.PlatformVersion
        }
        if cs, err := cpu.Info(); err == nil && len(cs) > 0 {
            sys.CPU = cs[0].ModelName
        }
        if vm, err := mem.VirtualMemory(); err == nil {
            sys.RAM = fmt.Sprintf("%d GB", vm.Total/1024/1024/1024)
        }
    })
    return sys
}

func Info() map[string]string {
    s := System()
    return map[string]string{
        "version":  Version,
        "commit":   Commit,
        "builtAt":  BuiltAt,
        "go":       runtime.Version(),
        "platform": s.Platform,
        "cpu":      s.CPU,
        "cores":    fmt.Sprint(s.Cores),
        "ram":      s.RAM,
    }
}
