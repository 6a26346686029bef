package main

import (
	"os"

	"golang.org/x/term"
)

// icons holds the glyphs used by list/status output. Echoing the teacher's
// lipgloss-era convention of colored status glyphs (without pulling in the
// TUI stack itself, which is out of scope here — see DESIGN.md), falling
// back to plain ASCII when stdout isn't a real terminal.
type icons struct {
	OK     string
	Fail   string
	Skip   string
	Cache  string
	Bullet string
}

func resolveIcons() icons {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return icons{OK: "✔", Fail: "✘", Skip: "⊘", Cache: "⚡", Bullet: "•"}
	}
	return icons{OK: "[ok]", Fail: "[fail]", Skip: "[skip]", Cache: "[cache]", Bullet: "-"}
}
