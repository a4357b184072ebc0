package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the chequeflow banner to w, colored for the terminal profile.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`   ___ _                         __ _`, "#34d399"},
		{`  / __| |_  ___ __ _ _  _ ___  / _| |_____ __ __`, "#2dd4bf"},
		{` | (__| ' \/ -_) _' | || / -_)|  _| / _ \ V  V /`, "#22d3ee"},
		{`  \___|_||_\___\__, |\_,_\___||_| |_\___/\_/\_/`, "#38bdf8"},
		{`                  |_|`, "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
