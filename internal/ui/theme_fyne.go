//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"

	"traindispatcher/internal/config"
)

// forcedTheme pins the default theme to one variant. highContrast swaps the
// main colors for black, white and yellow.
type forcedTheme struct {
	variant      fyne.ThemeVariant
	highContrast bool
}

var _ fyne.Theme = (*forcedTheme)(nil)

func (t *forcedTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	if t.highContrast {
		switch name {
		case theme.ColorNameBackground, theme.ColorNameInputBackground, theme.ColorNameMenuBackground, theme.ColorNameOverlayBackground:
			return color.Black
		case theme.ColorNameForeground, theme.ColorNamePlaceHolder:
			return color.White
		case theme.ColorNamePrimary, theme.ColorNameFocus, theme.ColorNameSelection, theme.ColorNameHover:
			return color.NRGBA{R: 0xff, G: 0xeb, B: 0x00, A: 0xff}
		case theme.ColorNameError:
			return color.NRGBA{R: 0xff, G: 0x40, B: 0x40, A: 0xff}
		}
	}
	return theme.DefaultTheme().Color(name, t.variant)
}

func (t *forcedTheme) Font(s fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(s)
}

func (t *forcedTheme) Icon(n fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(n)
}

func (t *forcedTheme) Size(n fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(n)
}

// themeApplier implements app.ThemeApplier on the Fyne settings.
type themeApplier struct{ app fyne.App }

func (a themeApplier) SetOverride(name string) {
	ft := &forcedTheme{variant: theme.VariantLight}
	switch name {
	case config.ThemeDark:
		ft.variant = theme.VariantDark
	case config.ThemeHighContrast:
		ft.variant, ft.highContrast = theme.VariantDark, true
	}
	a.app.Settings().SetTheme(ft)
}

func (a themeApplier) ClearOverride() {
	a.app.Settings().SetTheme(theme.DefaultTheme())
}
