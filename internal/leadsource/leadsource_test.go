package leadsource

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestSyntheticDeterministic(t *testing.T) {
	ctx := context.Background()
	s := &Synthetic{Seed: 42}

	first, err := s.FetchNew(ctx, 50)
	require.NoError(t, err)
	require.Len(t, first, 50)

	second, err := s.FetchNew(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same seed must generate the same leads")

	other, err := (&Synthetic{Seed: 7}).FetchNew(ctx, 50)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestSyntheticLeadsAreValid(t *testing.T) {
	leads, err := (&Synthetic{Seed: 1}).FetchNew(context.Background(), 200)
	require.NoError(t, err)
	require.Len(t, leads, 200)

	seen := make(map[string]bool)
	for _, lead := range leads {
		require.NoError(t, lead.Validate(), "lead %s", lead.ExternalID)
		assert.False(t, seen[lead.ExternalID], "duplicate external_id %s", lead.ExternalID)
		seen[lead.ExternalID] = true
		assert.NotEmpty(t, lead.Industry)
		assert.NotEmpty(t, lead.RoleTitle)
		assert.Contains(t, lead.LinkedInURL, "linkedin.com/in/")
		assert.Equal(t, "synthetic", lead.Source)
	}
}

func createLeadsXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestXLSXFetchNew(t *testing.T) {
	path := createLeadsXLSX(t, [][]string{
		{"Name", "Company", "Role", "Industry", "Email", "LinkedIn", "Country"},
		{"Ada Li", "Apex Logistics", "VP of Operations", "Logistics", "ada@apex.com", "https://linkedin.com/in/ada-li", "Canada"},
		{"Ben Roy", "Summit Retail", "VP of Sales", "Retail", "ben@summit.com", "https://linkedin.com/in/ben-roy", "France"},
	})

	leads, err := (&XLSX{Path: path}).FetchNew(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	assert.Equal(t, "Ada Li", leads[0].FullName)
	assert.Equal(t, "Apex Logistics", leads[0].CompanyName)
	assert.Equal(t, "VP of Operations", leads[0].RoleTitle)
	assert.Equal(t, "ada@apex.com", leads[0].Email)
	assert.Equal(t, "ada@apex.com", leads[0].ExternalID, "email backfills a missing external_id")
	assert.Equal(t, "xlsx", leads[0].Source)
}

func TestXLSXFetchNewHonorsLimit(t *testing.T) {
	path := createLeadsXLSX(t, [][]string{
		{"name", "email"},
		{"A One", "a@x.com"},
		{"B Two", "b@x.com"},
		{"C Three", "c@x.com"},
	})

	leads, err := (&XLSX{Path: path}).FetchNew(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, leads, 2)
}

func TestXLSXUnrecognizedHeader(t *testing.T) {
	path := createLeadsXLSX(t, [][]string{
		{"foo", "bar"},
		{"1", "2"},
	})

	_, err := (&XLSX{Path: path}).FetchNew(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recognized columns")
}

func TestXLSXMissingFile(t *testing.T) {
	_, err := (&XLSX{Path: "/nonexistent.xlsx"}).FetchNew(context.Background(), 10)
	require.Error(t, err)
}
