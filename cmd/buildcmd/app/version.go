package app

import (
	"fmt"
	"io"

	"github.com/phillarmonic/figlet/figletlib"
)

// Domain: Version Display
// This file contains logic for displaying version information

// ShowVersion displays version information. The ASCII art banner is only
// drawn on a terminal.
func ShowVersion(w io.Writer, version, commit, date string) error {
	if isTerminal(w) {
		loader := figletlib.NewEmbededLoader()
		font, err := loader.GetFontByName("standard")
		if err != nil {
			return err
		}

		startColor, _ := figletlib.ParseColor("#00FF95")
		endColor, _ := figletlib.ParseColor("#00C2FF")
		gradientConfig := figletlib.ColorConfig{
			Mode:       figletlib.ColorModeGradient,
			StartColor: startColor,
			EndColor:   endColor,
		}

		fmt.Fprintln(w)
		figletlib.PrintColoredMsg("buildcmd", font, 80, font.Settings(), "left", gradientConfig)
	}

	fmt.Fprintln(w, "buildcmd: command pipelines for build tasks")
	fmt.Fprintf(w, "Version %s\n", version)
	if commit != "unknown" {
		fmt.Fprintf(w, "commit: %s\n", commit)
	}
	if date != "unknown" {
		fmt.Fprintf(w, "built: %s\n", date)
	}
	return nil
}
