// Package export renders the in-memory board snapshot for spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/psepar/demandboard/internal/model"
)

// utf8BOM makes spreadsheet applications decode the file as UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var csvHeader = []string{
	"id", "titulo", "projeto", "categoria", "prioridade",
	"responsaveis", "emails", "status", "progresso", "criada_em",
	"justificativa",
}

// WriteCSV writes one row per task from the given snapshot. Assignee
// emails are resolved through the allowlist; names that do not resolve
// are skipped without failing the export. Embedded quotes are escaped by
// doubling, per RFC 4180.
func WriteCSV(w io.Writer, tasks []model.Task, directory *model.Directory) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("writing BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i := range tasks {
		t := &tasks[i]

		var emails []string
		for _, name := range t.Assignees {
			if user, ok := directory.ByName(name); ok {
				emails = append(emails, user.Email)
			}
		}

		row := []string{
			t.ID,
			t.Title,
			t.Project,
			t.Category,
			t.Priority,
			strings.Join(t.Assignees, "; "),
			strings.Join(emails, "; "),
			t.Status,
			strconv.Itoa(t.Progress),
			t.CreatedAt.Format("2006-01-02"),
			t.Justification,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row for task %s: %w", t.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
