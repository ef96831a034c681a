package app

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"

	"drop-analyzer/pkg/colorutil"
)

// DropTheme is the default fyne theme tinted with the overlay colors, so
// widgets match what is drawn on frames and plots.
type DropTheme struct{}

var _ fyne.Theme = (*DropTheme)(nil)

func (t *DropTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return colorutil.Series(0)
	case theme.ColorNameSelection:
		return colorutil.WithAlpha(colorutil.Edge, 0x60)
	case theme.ColorNameSuccess:
		return colorutil.Baseline
	}
	return theme.DefaultTheme().Color(name, variant)
}

func (t *DropTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *DropTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

// Size tightens the padding around the frame preview and plot.
func (t *DropTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNamePadding {
		return 3
	}
	return theme.DefaultTheme().Size(name)
}
