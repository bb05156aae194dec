package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"schedos/pkg/logging"
	"schedos/pkg/scenario"
	"schedos/pkg/trace"
	"schedos/pkg/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Configuration struct {
	Scenario string
	JSONDir  string
	Headless bool
	Verbose  bool
}

func main() {
	config := parseArguments()
	initLogging(config)
	defer logging.Close()

	if !config.Headless {
		showSplashScreen()
	}

	reports, err := runScenarios(config)
	if err != nil {
		log.Fatalf("Scenario run failed: %v", err)
	}

	if config.JSONDir != "" {
		if err := saveReports(reports, config.JSONDir); err != nil {
			log.Fatalf("Failed to save reports: %v", err)
		}
	}

	if config.Headless {
		printSummaries(reports)
		return
	}

	if err := startViewer(reports); err != nil {
		log.Fatalf("Failed to start UI: %v", err)
	}
}

// parseArguments processes command-line flags
func parseArguments() Configuration {
	var config Configuration

	names := make([]string, 0, len(scenario.List()))
	for _, s := range scenario.List() {
		names = append(names, s.Name)
	}

	flag.StringVar(&config.Scenario, "scenario", "all",
		fmt.Sprintf("Scenario to run: all, or one of %s", strings.Join(names, ", ")))
	flag.StringVar(&config.JSONDir, "json", "", "Directory to write JSON trace reports into")
	flag.BoolVar(&config.Headless, "headless", false, "Print a text summary instead of the interactive viewer")
	flag.BoolVar(&config.Verbose, "v", false, "Enable debug logging")

	flag.Parse()

	return config
}

func initLogging(config Configuration) {
	level := logging.LevelInfo
	if config.Verbose {
		level = logging.LevelDebug
	}

	// Logs share the terminal with the TUI, so keep them in a file unless
	// running headless.
	output := ""
	if !config.Headless {
		output = "logs/schedos.log"
	}

	if err := logging.Init(logging.Config{Level: level, OutputPath: output}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
}

// showSplashScreen displays the welcome banner
func showSplashScreen() {
	splash := `
╔══════════════════════════════════════════════════════════╗
║                                                          ║
║     ███████╗ ██████╗██╗  ██╗███████╗██████╗              ║
║     ██╔════╝██╔════╝██║  ██║██╔════╝██╔══██╗             ║
║     ███████╗██║     ███████║█████╗  ██║  ██║             ║
║     ╚════██║██║     ██╔══██║██╔══╝  ██║  ██║             ║
║     ███████║╚██████╗██║  ██║███████╗██████╔╝             ║
║     ╚══════╝ ╚═════╝╚═╝  ╚═╝╚══════╝╚═════╝              ║
║                                                          ║
║        A Priority Scheduler You Can Watch Think          ║
║                                                          ║
╚══════════════════════════════════════════════════════════╝
`

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true)

	fmt.Println(style.Render(splash))
}

// runScenarios executes the selected scenarios, each on its own kernel with
// its own recorder.
func runScenarios(config Configuration) ([]trace.Report, error) {
	var selected []string
	if config.Scenario == "all" {
		for _, s := range scenario.List() {
			selected = append(selected, s.Name)
		}
	} else {
		selected = strings.Split(config.Scenario, ",")
	}

	reports := make([]trace.Report, 0, len(selected))
	for _, name := range selected {
		name = strings.TrimSpace(name)
		rep, err := scenario.Run(name, trace.NewRecorder(0))
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// saveReports writes one JSON trace report per scenario.
func saveReports(reports []trace.Report, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	for _, rep := range reports {
		path := filepath.Join(dir, fmt.Sprintf("trace_%s.json", rep.Scenario))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := rep.WriteJSON(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("📝 Wrote %s\n", path)
	}
	return nil
}

// printSummaries reports each run in plain text for headless use.
func printSummaries(reports []trace.Report) {
	for _, rep := range reports {
		fmt.Printf("\n=== Scenario: %s ===\n", rep.Scenario)
		fmt.Printf("Ticks: idle=%d kernel=%d user=%d\n",
			rep.IdleTicks, rep.KernelTicks, rep.UserTicks)

		fmt.Println("Events:")
		for _, kind := range sortedKeys(rep.EventCounts) {
			fmt.Printf("  %-13s %d\n", kind, rep.EventCounts[kind])
		}

		fmt.Println("Threads:")
		for _, th := range rep.Threads {
			fmt.Printf("  %3d %-18s %-8s prio=%d base=%d\n",
				th.TID, th.Name, th.Status, th.Priority, th.BasePriority)
		}
	}
}

func sortedKeys(m map[string]int64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// startViewer launches the Bubble Tea trace viewer
func startViewer(reports []trace.Report) error {
	model := ui.NewModel(reports)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %v", err)
	}

	return nil
}
