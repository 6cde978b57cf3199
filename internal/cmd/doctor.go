package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	osexec "os/exec"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/library"
	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/policy"
	"github.com/voxop/voxop/internal/provider"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostics and collaborator health checks",
	Long: `Check that voxop can reach everything it needs.

Checks include:
  • Config file and policy
  • Command library
  • Language and vision model endpoints
  • xdotool and the screenshot command

Examples:
  voxop doctor
  voxop doctor --json`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(doctorCmd)
}

// DoctorCheck is one diagnostic result.
type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// DoctorReport is the complete diagnostic report.
type DoctorReport struct {
	Checks  []DoctorCheck `json:"checks"`
	Healthy bool          `json:"healthy"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	report := &DoctorReport{Healthy: true}
	add := func(c DoctorCheck) {
		if c.Status == "error" {
			report.Healthy = false
		}
		report.Checks = append(report.Checks, c)
	}

	add(checkConfig())
	add(checkPolicy(cfg))
	add(checkLibrary(cfg))
	for _, c := range checkProviders(cmd.Context(), cfg, logger) {
		add(c)
	}
	add(checkBinary("xdotool", "xdotool"))
	if len(cfg.GUI.CaptureCommand) > 0 {
		add(checkBinary("capture", cfg.GUI.CaptureCommand[0]))
	}

	if doctorJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Println(string(data))
	} else {
		printDoctorReport(report)
	}

	if !report.Healthy {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func checkConfig() DoctorCheck {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DoctorCheck{Name: "config", Status: "warning",
			Message: fmt.Sprintf("%s not found, using built-in defaults", path)}
	}
	return DoctorCheck{Name: "config", Status: "ok", Message: "using " + path}
}

func checkPolicy(cfg *config.Config) DoctorCheck {
	if cfg.PolicyPath == "" {
		pol := policy.DefaultPolicy()
		return DoctorCheck{Name: "policy", Status: "ok",
			Message: fmt.Sprintf("built-in default (%d capability rules, %d block patterns)",
				len(pol.Capabilities), len(pol.BlockPatterns))}
	}
	pol, err := policy.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return DoctorCheck{Name: "policy", Status: "error", Message: err.Error()}
	}
	if _, err := policy.NewGate(pol); err != nil {
		return DoctorCheck{Name: "policy", Status: "error", Message: err.Error()}
	}
	return DoctorCheck{Name: "policy", Status: "ok",
		Message: fmt.Sprintf("%s (%d capability rules, %d block patterns)",
			cfg.PolicyPath, len(pol.Capabilities), len(pol.BlockPatterns))}
}

func checkLibrary(cfg *config.Config) DoctorCheck {
	snap, err := library.LoadFile(cfg.Library.Path)
	if err != nil {
		if fileMissing(cfg.Library.Path) {
			return DoctorCheck{Name: "library", Status: "warning",
				Message: fmt.Sprintf("%s not found (run 'voxop library init')", cfg.Library.Path)}
		}
		return DoctorCheck{Name: "library", Status: "error", Message: err.Error()}
	}
	return DoctorCheck{Name: "library", Status: "ok",
		Message: fmt.Sprintf("%s (%d entries)", cfg.Library.Path, snap.Size())}
}

func fileMissing(path string) bool {
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}

// checkProviders probes both model endpoints in parallel.
func checkProviders(ctx context.Context, cfg *config.Config, logger *log.Logger) []DoctorCheck {
	registry, err := provider.NewRegistry(cfg.Providers, logger)
	if err != nil {
		return []DoctorCheck{{Name: "providers", Status: "error", Message: err.Error()}}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	checks := make([]DoctorCheck, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		checks[0] = probe(ctx, "language", cfg.Providers.Language.BaseURL, registry.Language().Health)
	}()
	go func() {
		defer wg.Done()
		checks[1] = probe(ctx, "vision", cfg.Providers.Vision.BaseURL, registry.Vision().Health)
	}()
	wg.Wait()
	return checks
}

func probe(ctx context.Context, name, url string, health func(context.Context) error) DoctorCheck {
	start := time.Now()
	if err := health(ctx); err != nil {
		return DoctorCheck{Name: name, Status: "error", Message: err.Error()}
	}
	return DoctorCheck{Name: name, Status: "ok",
		Message: fmt.Sprintf("%s answered in %s", url, time.Since(start).Round(time.Millisecond))}
}

func checkBinary(name, binary string) DoctorCheck {
	path, err := osexec.LookPath(binary)
	if err != nil {
		return DoctorCheck{Name: name, Status: "error",
			Message: fmt.Sprintf("%s not found on PATH", binary)}
	}
	return DoctorCheck{Name: name, Status: "ok", Message: path}
}

func printDoctorReport(report *DoctorReport) {
	fmt.Println("voxop doctor")
	fmt.Println()
	problems := 0
	for _, c := range report.Checks {
		glyph := "✓"
		switch c.Status {
		case "warning":
			glyph = "⚠"
		case "error":
			glyph = "✗"
			problems++
		}
		fmt.Printf("  %s %-10s %s\n", glyph, c.Name, c.Message)
	}
	fmt.Println()
	if problems == 0 {
		fmt.Println("Everything looks good.")
	} else {
		fmt.Printf("%d problems found\n", problems)
	}
}
