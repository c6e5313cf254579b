package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// gen-docs writes shell completions and man pages for the client and the
// server from the flag tables below. Keep them in sync with internal/config.

type flagDef struct {
	Short string
	Long  string
	Arg   string
	Desc  string
}

type command struct {
	Name        string
	Description string
	Flags       []flagDef
	Examples    [][2]string
}

var commands = []command{
	{
		Name:        "sessionguard",
		Description: "Terminal client that warns before a server session times out and keeps it alive on request.",
		Flags: []flagDef{
			{Long: "-url", Arg: "<url>", Desc: "Websocket URL of the server (default ws://localhost:8080/ws, or $SESSIONGUARD_URL)"},
			{Long: "-presenter", Arg: "<tui|desktop>", Desc: "Where warnings appear"},
			{Long: "-policy", Arg: "<on-time|grace>", Desc: "Whether the final ping fires at the timeout or one minute later"},
			{Long: "-log", Arg: "<file>", Desc: "Log file (default debug.log)"},
			{Long: "-handshake-timeout", Arg: "<duration>", Desc: "Websocket handshake timeout (e.g. \"10s\")"},
			{Long: "-debug", Desc: "Log at debug level"},
			{Short: "-v", Long: "-version", Desc: "Show version information"},
			{Short: "-h", Long: "-help", Desc: "Show help message"},
		},
		Examples: [][2]string{
			{"sessionguard", "Connect to a local server and show warnings in the terminal."},
			{"sessionguard -url wss://app.example.com/ws -presenter desktop", "Show warnings as desktop notifications."},
		},
	},
	{
		Name:        "sessionguard-server",
		Description: "Session server that hosts session guards over a websocket.",
		Flags: []flagDef{
			{Long: "-config", Arg: "<file>", Desc: "YAML config file; SESSIONGUARD_* variables and .env override it"},
			{Short: "-h", Long: "-help", Desc: "Show help message"},
		},
		Examples: [][2]string{
			{"sessionguard-server", "Serve on :8080 with 30 minute sessions."},
			{"SESSIONGUARD_SESSION_TIMEOUT=5 sessionguard-server", "Serve 5 minute sessions."},
		},
	},
}

func main() {
	for _, cmd := range commands {
		if err := writeCompletions(cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := writeMan(cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

func names(f flagDef) []string {
	var out []string
	if f.Short != "" {
		out = append(out, f.Short)
	}
	if f.Long != "" {
		out = append(out, f.Long)
	}
	return out
}

func writeCompletions(cmd command) error {
	base := filepath.Join("docs", "completions")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return err
	}
	fn := strings.ReplaceAll(cmd.Name, "-", "_")

	// Bash
	var opts []string
	for _, f := range cmd.Flags {
		opts = append(opts, names(f)...)
	}
	var bash strings.Builder
	bash.WriteString("_" + fn + "() {\n")
	bash.WriteString("  local cur\n")
	bash.WriteString("  COMPREPLY=()\n")
	bash.WriteString("  cur=\"${COMP_WORDS[COMP_CWORD]}\"\n")
	bash.WriteString("  if [[ ${cur} == -* ]] ; then\n")
	bash.WriteString("    COMPREPLY=( $(compgen -W \"" + strings.Join(opts, " ") + "\" -- ${cur}) )\n")
	bash.WriteString("  fi\n")
	bash.WriteString("}\n")
	bash.WriteString("complete -F _" + fn + " " + cmd.Name + "\n")
	if err := os.WriteFile(filepath.Join(base, cmd.Name+".bash"), []byte(bash.String()), 0o644); err != nil {
		return err
	}

	// Zsh
	var parts []string
	for _, f := range cmd.Flags {
		for _, n := range names(f) {
			parts = append(parts, fmt.Sprintf("'%s[%s]%s'", zFlagName(n, f.Arg), f.Desc, zArgSuffix(f.Arg)))
		}
	}
	zsh := "#compdef " + cmd.Name + "\n_arguments " + strings.Join(parts, " ") + "\n"
	if err := os.WriteFile(filepath.Join(base, "_"+cmd.Name), []byte(zsh), 0o644); err != nil {
		return err
	}

	// Fish
	var fish strings.Builder
	fish.WriteString("complete -c " + cmd.Name + " -f\n")
	for _, f := range cmd.Flags {
		fish.WriteString(fishFlagLine(cmd.Name, f))
	}
	return os.WriteFile(filepath.Join(base, cmd.Name+".fish"), []byte(fish.String()), 0o644)
}

func zFlagName(name, arg string) string {
	if arg != "" {
		return name + "="
	}
	return name
}

func zArgSuffix(arg string) string {
	if arg == "" {
		return ""
	}
	return ":value:" + strings.Trim(arg, "<>")
}

// fishFlagLine uses -o since Go flags take a single dash.
func fishFlagLine(name string, f flagDef) string {
	var b strings.Builder
	b.WriteString("complete -c " + name)
	for _, n := range names(f) {
		b.WriteString(" -o " + strings.TrimPrefix(n, "-"))
	}
	if f.Arg != "" {
		b.WriteString(" -r")
	}
	b.WriteString(" -d \"" + strings.ReplaceAll(f.Desc, "\"", "\\\"") + "\"\n")
	return b.String()
}

func roff(s string) string {
	return strings.ReplaceAll(s, "-", "\\-")
}

func writeMan(cmd command) error {
	if err := os.MkdirAll("man", 0o755); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(".TH \"" + strings.ToUpper(cmd.Name) + "\" \"1\" \"\" \"session-guard\" \"User Commands\"\n")
	b.WriteString(".SH NAME\n" + roff(cmd.Name) + " \\- " + cmd.Description + "\n")
	b.WriteString(".SH SYNOPSIS\n.B " + roff(cmd.Name) + "\n")
	var synopsis []string
	for _, f := range cmd.Flags {
		s := strings.Join(names(f), "|")
		if f.Arg != "" {
			s += " " + f.Arg
		}
		synopsis = append(synopsis, "["+roff(s)+"]")
	}
	b.WriteString(strings.Join(synopsis, " ") + "\n")
	b.WriteString(".SH DESCRIPTION\n" + cmd.Description + "\n")
	b.WriteString(".SH OPTIONS\n")
	for _, f := range cmd.Flags {
		n := strings.Join(names(f), ", ")
		if f.Arg != "" {
			n += " " + f.Arg
		}
		b.WriteString(".TP\n\\fB" + roff(n) + "\\fR\n" + f.Desc + "\n")
	}
	b.WriteString(".SH EXAMPLES\n")
	for _, ex := range cmd.Examples {
		b.WriteString(".TP\n\\fB" + roff(ex[0]) + "\\fR\n" + ex[1] + "\n")
	}
	b.WriteString(".SH SEE ALSO\nProject homepage: https://github.com/stigoleg/session-guard\n")
	return os.WriteFile(filepath.Join("man", cmd.Name+".1"), []byte(b.String()), 0o644)
}
