package board

import (
	"image/color"
	"strings"
)

// Theme is a board color scheme.
type Theme struct {
	Name        string
	Light       color.Color
	Dark        color.Color
	LastMove    color.Color
	Selected    color.Color
	Legal       color.Color
	Coordinates color.Color
	Background  color.Color
}

const DefaultTheme = "brown"

var themes = map[string]Theme{
	"brown": {
		Name:        "brown",
		Light:       color.RGBA{233, 207, 163, 255},
		Dark:        color.RGBA{187, 136, 96, 255},
		LastMove:    color.NRGBA{R: 255, G: 228, B: 120, A: 140},
		Selected:    color.NRGBA{R: 182, G: 184, B: 190, A: 130},
		Legal:       color.NRGBA{R: 40, G: 40, B: 40, A: 90},
		Coordinates: color.NRGBA{R: 8, G: 214, B: 120, A: 255},
		Background:  color.NRGBA{R: 20, G: 22, B: 33, A: 255},
	},
	"green": {
		Name:        "green",
		Light:       color.RGBA{238, 238, 210, 255},
		Dark:        color.RGBA{118, 150, 86, 255},
		LastMove:    color.NRGBA{R: 246, G: 246, B: 105, A: 150},
		Selected:    color.NRGBA{R: 186, G: 202, B: 68, A: 150},
		Legal:       color.NRGBA{R: 20, G: 40, B: 20, A: 90},
		Coordinates: color.NRGBA{R: 238, G: 238, B: 210, A: 255},
		Background:  color.NRGBA{R: 38, G: 36, B: 33, A: 255},
	},
	"blue": {
		Name:        "blue",
		Light:       color.RGBA{222, 227, 230, 255},
		Dark:        color.RGBA{140, 162, 173, 255},
		LastMove:    color.NRGBA{R: 148, G: 207, B: 255, A: 150},
		Selected:    color.NRGBA{R: 100, G: 140, B: 200, A: 130},
		Legal:       color.NRGBA{R: 20, G: 30, B: 60, A: 90},
		Coordinates: color.NRGBA{R: 222, G: 227, B: 230, A: 255},
		Background:  color.NRGBA{R: 24, G: 30, B: 40, A: 255},
	},
	"gray": {
		Name:        "gray",
		Light:       color.RGBA{200, 200, 200, 255},
		Dark:        color.RGBA{128, 128, 128, 255},
		LastMove:    color.NRGBA{R: 182, G: 184, B: 190, A: 150},
		Selected:    color.NRGBA{R: 90, G: 90, B: 90, A: 120},
		Legal:       color.NRGBA{R: 30, G: 30, B: 30, A: 100},
		Coordinates: color.NRGBA{R: 220, G: 220, B: 220, A: 255},
		Background:  color.NRGBA{R: 30, G: 30, B: 30, A: 255},
	},
}

// ThemeNames lists supported themes.
var ThemeNames = []string{"brown", "green", "blue", "gray"}

// ThemeByName falls back to the default theme for unknown names.
func ThemeByName(name string) Theme {
	if t, ok := themes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t
	}
	return themes[DefaultTheme]
}

// ValidTheme reports whether name is a known theme.
func ValidTheme(name string) bool {
	_, ok := themes[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// ValidPieceSet reports whether name is a known piece set.
func ValidPieceSet(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PieceSetClassic, PieceSetFlat:
		return true
	default:
		return false
	}
}
