package pprint

import (
	"fmt"
	"strings"
)

var bannerArt = []string{
	" ██╗    ██╗ █████╗ ██████╗ ██████╗ ███████╗███╗   ██╗",
	" ██║    ██║██╔══██╗██╔══██╗██╔══██╗██╔════╝████╗  ██║",
	" ██║ █╗ ██║███████║██████╔╝██║  ██║█████╗  ██╔██╗ ██║",
	" ██║███╗██║██╔══██║██╔══██╗██║  ██║██╔══╝  ██║╚██╗██║",
	" ╚███╔███╔╝██║  ██║██║  ██║██████╔╝███████╗██║ ╚████║",
	"  ╚══╝╚══╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ╚══════╝╚═╝  ╚═══╝",
}

// Banner renders the logo, fading from primary to muted, with the tagline and
// version underneath.
func Banner(version, buildDate string) string {
	shades := [...]func(...string) string{
		StylePrimary.Render, StylePrimary.Render,
		StyleAccent.Render, StyleAccent.Render,
		StyleText.Render, StyleMuted.Render,
	}
	var b strings.Builder
	b.WriteString("\n")
	for i, line := range bannerArt {
		b.WriteString(shades[i](line) + "\n")
	}
	b.WriteString("\n" + StyleMuted.Render("  Health-driven failover for self-hosted services") + "\n")
	b.WriteString(StyleAccent.Render("  " + version))
	if buildDate != "" {
		b.WriteString(StyleMuted.Render("  built " + buildDate))
	}
	b.WriteString("\n\n")
	return b.String()
}

func PrintBanner(version, buildDate string) {
	fmt.Fprint(Default.Out, Banner(version, buildDate))
}

// PrintBannerSmall prints the one-line brand prefix.
func PrintBannerSmall() {
	fmt.Fprint(Default.Out, StylePrimary.Render("◉ WARDEN")+" ")
}
