package app

import (
	"fmt"
	"os"

	"devstack/internal/orchestrator"
	"devstack/internal/stack"
	"devstack/pkg/logging"
)

// Application holds the loaded stack and the orchestrator acting on it.
type Application struct {
	config       *Config
	stack        *stack.Stack
	orchestrator *orchestrator.Orchestrator
}

// NewApplication initializes logging, loads the stack and the template
// file, and constructs the orchestrator. Nothing touches the container
// runtime yet.
func NewApplication(cfg *Config) (*Application, error) {
	out := cfg.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logging.Init(cfg.logLevel(), cfg.LogFormat, out)

	st, err := stack.Load(cfg.StackFile)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load stack")
		return nil, err
	}
	logging.Debug("Bootstrap", "Loaded stack %s from %s", st.Name, st.Source)

	template, err := cfg.template()
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Stack:       st,
		EnvFile:     cfg.EnvFile,
		Environ:     os.Environ(),
		Template:    template,
		Runtime:     cfg.Runtime,
		Project:     cfg.Project,
		WorkDir:     cfg.WorkDir,
		Strict:      cfg.Strict,
		Parallel:    cfg.Parallel,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
		Observer:    cfg.Observer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	return &Application{config: cfg, stack: st, orchestrator: orch}, nil
}

// Orchestrator returns the orchestrator for the loaded stack.
func (a *Application) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }

// Stack returns the loaded stack definition.
func (a *Application) Stack() *stack.Stack { return a.stack }

// WatchedFiles lists the files whose changes re-apply the stack: the stack
// file (unless embedded), the env file and the template file.
func (a *Application) WatchedFiles() []string {
	var files []string
	if a.config.StackFile != "" {
		files = append(files, a.config.StackFile)
	}
	if a.config.EnvFile != "" {
		files = append(files, a.config.EnvFile)
	}
	if a.config.TemplateFile != "" {
		files = append(files, a.config.TemplateFile)
	}
	return files
}
