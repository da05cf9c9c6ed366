package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/qaforge/convotest/qa/model"
)

const maxCellError = 40

// renderMatrix prints one row per scenario and one column per persona,
// followed by the run totals.
func renderMatrix(w io.Writer, def *model.TestDefinition, run *model.TestRun) {
	byPair := make(map[string]*model.Conversation, len(run.Chats))
	for i := range run.Chats {
		c := &run.Chats[i]
		byPair[pairKey(c.Scenario, c.PersonaID)] = c
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(append([]string{"Scenario"}, def.PersonaIDs...))
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)

	for _, sc := range def.Scenarios {
		row := []string{sc.Scenario}
		for _, personaID := range def.PersonaIDs {
			row = append(row, cell(byPair[pairKey(sc.Scenario, personaID)]))
		}
		table.Append(row)
	}
	table.Render()

	fmt.Fprintf(w, "status=%s total=%d passed=%d failed=%d correct=%d incorrect=%d\n",
		run.Status, run.Metrics.Total, run.Metrics.Passed, run.Metrics.Failed,
		run.Metrics.Correct, run.Metrics.Incorrect)
}

func pairKey(scenario, personaID string) string {
	return scenario + "\x00" + personaID
}

func cell(c *model.Conversation) string {
	switch {
	case c == nil:
		return "SKIPPED"
	case c.Status == model.ChatStatusPassed:
		return "PASS"
	case c.Error != "":
		msg := c.Error
		if len(msg) > maxCellError {
			msg = msg[:maxCellError] + "..."
		}
		return "ERROR " + strings.ReplaceAll(msg, "\n", " ")
	default:
		return "FAIL"
	}
}
