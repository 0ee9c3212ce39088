// Package descriptor loads and validates process-launch descriptors from an
// ecosystem file and turns them into spawn specifications.
//
// The file format keeps the field names of PM2 ecosystem entries
// (name, script, args, interpreter, log_file, out_file, error_file) so an
// existing ecosystem.config.js can be ported by copying its values.
package descriptor

import (
	"fmt"
	"sort"

	"github.com/google/shlex"
)

// InterpreterNone runs the script directly instead of through an interpreter
const InterpreterNone = "none"

// LaunchDescriptor describes how to start exactly one managed process.
// Values returned by Load are copies; nothing in this package mutates them.
type LaunchDescriptor struct {
	Name        string `yaml:"name" json:"name" toml:"name"`
	Script      string `yaml:"script" json:"script" toml:"script"`
	Args        string `yaml:"args" json:"args" toml:"args"`
	Interpreter string `yaml:"interpreter" json:"interpreter" toml:"interpreter"`
	LogFile     string `yaml:"log_file" json:"log_file" toml:"log_file"`
	OutFile     string `yaml:"out_file" json:"out_file" toml:"out_file"`
	ErrorFile   string `yaml:"error_file" json:"error_file" toml:"error_file"`

	// Optional
	Cwd string            `yaml:"cwd,omitempty" json:"cwd,omitempty" toml:"cwd,omitempty"`
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty" toml:"env,omitempty"`
}

// SpawnSpec is everything needed to exec the process described by a descriptor
type SpawnSpec struct {
	Executable  string   `json:"executable" yaml:"executable"`
	Arguments   []string `json:"arguments" yaml:"arguments"` // argv[1:]
	Dir         string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	Env         []string `json:"env,omitempty" yaml:"env,omitempty"` // KEY=VALUE, sorted, added to the inherited environment
	Stdout      string   `json:"stdout" yaml:"stdout"`
	Stderr      string   `json:"stderr" yaml:"stderr"`
	CombinedLog string   `json:"combined_log" yaml:"combined_log"`
}

// Argv returns the full argument vector including the executable
func (s SpawnSpec) Argv() []string {
	argv := make([]string, 0, len(s.Arguments)+1)
	argv = append(argv, s.Executable)
	return append(argv, s.Arguments...)
}

// SplitArgs splits a shell-style argument line. Quotes group words and a
// backslash escapes the next character; no expansion is performed.
func SplitArgs(line string) ([]string, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("failed to split args %q: %w", line, err)
	}
	if words == nil {
		words = []string{}
	}
	return words, nil
}

// ToSpawnSpec converts the descriptor into a spawn specification.
// It has no side effects and returns the same value for the same descriptor.
// Args that cannot be split are rejected by Validate; here they yield no
// arguments beyond the script.
func (d LaunchDescriptor) ToSpawnSpec() SpawnSpec {
	args, err := SplitArgs(d.Args)
	if err != nil {
		args = []string{}
	}

	spec := SpawnSpec{
		Dir:         d.Cwd,
		Env:         d.environ(),
		Stdout:      d.OutFile,
		Stderr:      d.ErrorFile,
		CombinedLog: d.LogFile,
	}

	if d.Interpreter == InterpreterNone {
		spec.Executable = d.Script
		spec.Arguments = args
	} else {
		spec.Executable = d.Interpreter
		spec.Arguments = append([]string{d.Script}, args...)
	}

	return spec
}

// environ flattens Env into sorted KEY=VALUE pairs
func (d LaunchDescriptor) environ() []string {
	if len(d.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+d.Env[k])
	}
	return env
}

// Clone returns a deep copy
func (d LaunchDescriptor) Clone() LaunchDescriptor {
	if d.Env != nil {
		env := make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			env[k] = v
		}
		d.Env = env
	}
	return d
}

// LogFiles returns the three log destinations in combined, stdout, stderr order
func (d LaunchDescriptor) LogFiles() []string {
	return []string{d.LogFile, d.OutFile, d.ErrorFile}
}
