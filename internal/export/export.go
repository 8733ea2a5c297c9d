// Package export writes the flat tabular projection of the contact
// listing: one row per contact, one column per field, with resolved
// reference names instead of ids. Investigator-profile columns are
// always present; contacts without a profile get blank cells.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/intake-cli/internal/model"
)

// Columns defines the ordered output columns shared by the CSV and
// XLSX writers.
var Columns = []string{
	"ID",
	"First Name",
	"Last Name",
	"Title",
	"Degree",
	"Email",
	"Phone",
	"Mobile",
	"Fax",
	"Address",
	"Organization",
	"Organization Type",
	"Specialty",
	"Occupation",
	"Department",
	"Country",
	"State/Region",
	"City",
	"Assistant Name",
	"Assistant Email",
	"Assistant Phone",
	"Status",
	"Created By",
	"Created At",
	"Investigator",
	"PI Experience",
	"PI Interest",
	"PI Notes",
	"Sub-I Experience",
	"Sub-I Interest",
	"Sub-I Notes",
	"Training Completed",
	"Training Date",
	"Investigator Notes",
}

// Row maps a ContactDetail to the ordered column values.
func Row(d model.ContactDetail) []string {
	c := d.Contact

	row := []string{
		c.ID,
		c.FirstName,
		c.LastName,
		c.Title,
		c.Degree,
		strOrBlank(c.Email),
		c.Phone,
		c.Mobile,
		c.Fax,
		strOrBlank(c.Address),
		d.OrganizationName,
		d.OrganizationTypeName,
		d.SpecialtyName,
		d.OccupationName,
		d.DepartmentName,
		d.CountryName,
		d.StateName,
		d.CityName,
		c.AssistantName,
		c.AssistantEmail,
		c.AssistantPhone,
		string(c.Status),
		d.CreatorName,
		c.CreatedAt.UTC().Format(time.RFC3339),
	}

	if d.Profile == nil {
		// Absent profile means blank cells, not omitted columns.
		return append(row, "false", "", "", "", "", "", "", "", "", "")
	}

	p := d.Profile
	return append(row,
		"true",
		strconv.FormatBool(p.PrincipalExperience),
		strconv.FormatBool(p.PrincipalInterest),
		p.PrincipalNotes,
		strconv.FormatBool(p.SubExperience),
		strconv.FormatBool(p.SubInterest),
		p.SubNotes,
		strconv.FormatBool(p.TrainingCompleted),
		dateOrBlank(p.TrainingDate),
		p.Notes,
	)
}

// WriteCSV writes the header and one row per contact to w.
func WriteCSV(w io.Writer, details []model.ContactDetail) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, d := range details {
		if err := cw.Write(Row(d)); err != nil {
			return eris.Wrapf(err, "export: write row %s", d.Contact.ID)
		}
	}
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}

// WriteCSVFile writes the CSV projection to a file at path.
func WriteCSVFile(path string, details []model.ContactDetail) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	defer f.Close()
	return WriteCSV(f, details)
}

func buildWorkbook(details []model.ContactDetail) (*xlsx.File, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Contacts")
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns {
		header.AddCell().Value = col
	}
	for _, d := range details {
		row := sheet.AddRow()
		for _, v := range Row(d) {
			row.AddCell().Value = v
		}
	}
	return file, nil
}

// WriteXLSX writes the same projection as a single-sheet workbook.
func WriteXLSX(path string, details []model.ContactDetail) error {
	file, err := buildWorkbook(details)
	if err != nil {
		return err
	}
	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "export: save xlsx")
	}
	return nil
}

// WriteXLSXTo streams the workbook to w, for HTTP responses.
func WriteXLSXTo(w io.Writer, details []model.ContactDetail) error {
	file, err := buildWorkbook(details)
	if err != nil {
		return err
	}
	if err := file.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func strOrBlank(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateOrBlank(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
