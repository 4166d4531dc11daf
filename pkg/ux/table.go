// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table prints rows under headers.
//
// Description:
//
//	Rich mode draws a rounded lipgloss table with styled headers. Plain
//	mode writes a tab-separated header line followed by one line per row,
//	which is what scripts consuming the report expect.
//
// Inputs:
//
//	headers - Column names
//	rows - Cell text; short rows are padded with empty cells
func (p *Printer) Table(headers []string, rows [][]string) {
	rows = padRows(len(headers), rows)

	if p.plain() {
		fmt.Fprintln(p.w, strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(p.w, strings.Join(r, "\t"))
		}
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(Styles.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Header
			}
			return Styles.Cell
		})
	fmt.Fprintln(p.w, t.Render())
}

// padRows extends every row to width cells.
func padRows(width int, rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		if len(r) >= width {
			out[i] = r
			continue
		}
		padded := make([]string, width)
		copy(padded, r)
		out[i] = padded
	}
	return out
}
