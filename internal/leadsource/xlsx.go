package leadsource

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
)

// XLSX reads leads from a spreadsheet. The first row is a header; column
// names are matched case-insensitively against the lead fields.
type XLSX struct {
	Path      string
	SheetName string // optional; defaults to the first sheet
}

// Recognized header names per field.
var xlsxColumns = map[string]string{
	"external_id":     "external_id",
	"id":              "external_id",
	"full_name":       "full_name",
	"name":            "full_name",
	"company_name":    "company_name",
	"company":         "company_name",
	"role_title":      "role_title",
	"role":            "role_title",
	"title":           "role_title",
	"industry":        "industry",
	"company_website": "company_website",
	"website":         "company_website",
	"email":           "email",
	"linkedin_url":    "linkedin_url",
	"linkedin":        "linkedin_url",
	"country":         "country",
}

// FetchNew reads up to limit lead rows from the spreadsheet.
func (x *XLSX) FetchNew(ctx context.Context, limit int) ([]model.Lead, error) {
	f, err := xlsx.OpenFile(x.Path)
	if err != nil {
		return nil, eris.Wrap(err, "leadsource: open xlsx")
	}

	sheet, err := x.sheet(f)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	// Map header positions to lead fields.
	fields := make(map[int]string)
	for i, cell := range sheet.Rows[0].Cells {
		name := strings.ToLower(strings.TrimSpace(cell.String()))
		if field, ok := xlsxColumns[name]; ok {
			fields[i] = field
		}
	}
	if len(fields) == 0 {
		return nil, eris.Errorf("leadsource: no recognized columns in %s", x.Path)
	}

	var leads []model.Lead
	for _, row := range sheet.Rows[1:] {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "leadsource: xlsx canceled")
		}
		if len(leads) >= limit {
			break
		}

		lead := model.Lead{Source: "xlsx"}
		for i, cell := range row.Cells {
			field, ok := fields[i]
			if !ok {
				continue
			}
			val := strings.TrimSpace(cell.String())
			switch field {
			case "external_id":
				lead.ExternalID = val
			case "full_name":
				lead.FullName = val
			case "company_name":
				lead.CompanyName = val
			case "role_title":
				lead.RoleTitle = val
			case "industry":
				lead.Industry = val
			case "company_website":
				lead.CompanyWebsite = val
			case "email":
				lead.Email = val
			case "linkedin_url":
				lead.LinkedInURL = val
			case "country":
				lead.Country = val
			}
		}
		if lead.ExternalID == "" {
			lead.ExternalID = lead.Email
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func (x *XLSX) sheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if x.SheetName != "" {
		sheet, ok := f.Sheet[x.SheetName]
		if !ok {
			return nil, eris.Errorf("leadsource: sheet %q not found", x.SheetName)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("leadsource: %s has no sheets", x.Path)
	}
	return f.Sheets[0], nil
}
