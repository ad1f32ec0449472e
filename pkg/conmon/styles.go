/*
Copyright 2018-2024 Craig Johnston <cjimti@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package conmon

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle          lipgloss.Style
	sectionStyle        lipgloss.Style
	mutedStyle          lipgloss.Style
	errorStyle          lipgloss.Style
	statusStyle         lipgloss.Style
	tableHeaderStyle    lipgloss.Style
	tableHighlightStyle lipgloss.Style

	levelStyles map[string]lipgloss.Style
)

func init() {
	applyTheme(true)
}

// applyTheme picks the light or dark palette
func applyTheme(dark bool) {
	color := func(light, darkColor string) lipgloss.Color {
		if dark {
			return lipgloss.Color(darkColor)
		}
		return lipgloss.Color(light)
	}
	yellow := color("136", "226")
	blue := color("27", "39")
	green := color("28", "42")
	red := color("160", "196")
	gray := color("243", "240")
	white := color("16", "255")
	selected := color("254", "237")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(yellow)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(white)
	mutedStyle = lipgloss.NewStyle().Foreground(gray)
	errorStyle = lipgloss.NewStyle().Foreground(red)
	statusStyle = lipgloss.NewStyle().Foreground(white)
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(yellow)
	tableHighlightStyle = lipgloss.NewStyle().Background(selected).Foreground(white)

	levelStyles = map[string]lipgloss.Style{
		"debug": lipgloss.NewStyle().Foreground(blue),
		"log":   lipgloss.NewStyle().Foreground(white),
		"info":  lipgloss.NewStyle().Foreground(green),
		"warn":  lipgloss.NewStyle().Foreground(yellow),
		"error": lipgloss.NewStyle().Foreground(red),
		"trace": lipgloss.NewStyle().Foreground(gray),
	}
}

func levelStyle(level string) lipgloss.Style {
	if s, ok := levelStyles[level]; ok {
		return s
	}
	return mutedStyle
}
