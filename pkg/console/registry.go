// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package console runs line-oriented operator commands, one cobra command
// per registered name.
package console

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// ErrEmptyLine is returned by Execute for a line with no fields
var ErrEmptyLine = errors.New("empty command line")

// Handler runs one command. Output goes to w.
type Handler func(w io.Writer, args []string) error

// Registry maps command names to handlers. It satisfies
// agx.CommandRegistrar.
type Registry struct {
	name     string
	commands map[string]entry
}

type entry struct {
	usage   string
	handler Handler
}

// NewRegistry creates an empty registry. name is shown in help output.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:     name,
		commands: make(map[string]entry),
	}
}

// Register adds or replaces a command
func (r *Registry) Register(name, usage string, handler func(w io.Writer, args []string) error) {
	r.commands[name] = entry{usage: usage, handler: handler}
}

// Commands returns the registered names in sorted order
func (r *Registry) Commands() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute splits line into fields and runs the matching command. A fresh
// cobra tree is built per call so no flag or output state carries over.
func (r *Registry) Execute(line string, w io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ErrEmptyLine
	}

	root := r.tree(w)
	root.SetArgs(fields)
	return root.Execute()
}

func (r *Registry) tree(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           r.name,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("unknown command: %s (try help)", args[0])
		},
	}
	root.SetOut(w)
	root.SetErr(w)
	root.CompletionOptions.DisableDefaultCmd = true

	for _, name := range r.Commands() {
		e := r.commands[name]
		root.AddCommand(&cobra.Command{
			Use:                name,
			Short:              e.usage,
			DisableFlagParsing: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.handler(cmd.OutOrStdout(), args)
			},
		})
	}
	return root
}
