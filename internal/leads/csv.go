// Package leads reads raw lead batches from CSV exports and writes enriched
// results back out.
package leads

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/banyan-labs/lead-optimizer/internal/model"
)

// columnAliases maps the header names seen in CRM exports to lead fields.
var columnAliases = map[string]string{
	"id":           "id",
	"lead_id":      "id",
	"name":         "name",
	"contact":      "name",
	"contact_name": "name",
	"company":      "company",
	"organization": "company",
	"org":          "company",
	"org_name":     "company",
	"website":      "website",
	"url":          "website",
	"ein":          "ein",
	"tax_id":       "ein",
	"email":        "email",
	"phone":        "phone",
	"location":     "location",
	"city":         "location",
	"address":      "address",
}

// ReadFile loads leads from a CSV file.
func ReadFile(path string) ([]model.LeadRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "leads: open %s", path)
	}
	defer f.Close()

	recs, err := Read(f)
	if err != nil {
		return nil, eris.Wrapf(err, "leads: %s", path)
	}
	return recs, nil
}

// Read parses leads from CSV. The first row must be a header; unrecognized
// columns are ignored. A lead without an id column gets a generated one so
// checkpointing always has a key.
func Read(r io.Reader) ([]model.LeadRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("leads: empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "leads: read header")
	}

	fields := make(map[int]string, len(header))
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(col))
		if field, ok := columnAliases[key]; ok {
			fields[i] = field
		}
	}
	if len(fields) == 0 {
		return nil, eris.New("leads: no recognized columns in header")
	}

	var leads []model.LeadRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "leads: read row")
		}

		var lead model.LeadRecord
		for i, value := range record {
			field, ok := fields[i]
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch field {
			case "id":
				lead.ID = value
			case "name":
				lead.Name = value
			case "company":
				lead.Company = value
			case "website":
				lead.Website = value
			case "ein":
				lead.EIN = value
			case "email":
				lead.Email = value
			case "phone":
				lead.Phone = value
			case "location":
				lead.Location = value
			case "address":
				lead.Address = value
			}
		}

		if lead.ID == "" {
			lead.ID = uuid.New().String()
		}
		leads = append(leads, lead)
	}

	return leads, nil
}

var exportHeader = []string{
	"id", "company", "website", "state", "nonprofit_status", "confidence",
	"org_type", "best_fit", "data_quality", "error",
}

// WriteCSV writes enriched leads as CSV, one row per lead plus a score and
// tier column pair for every product name in productOrder.
func WriteCSV(w io.Writer, enriched []model.EnrichedLead, productOrder []string) error {
	writer := csv.NewWriter(w)

	header := append([]string{}, exportHeader...)
	for _, p := range productOrder {
		header = append(header, p+"_score", p+"_tier")
	}
	if err := writer.Write(header); err != nil {
		return eris.Wrap(err, "leads: write header")
	}

	for _, lead := range enriched {
		row := []string{
			lead.Lead.ID,
			lead.Lead.Company,
			lead.Lead.Website,
			string(lead.State),
			string(lead.Nonprofit.Status),
			fmt.Sprintf("%.2f", lead.Nonprofit.Confidence),
			string(lead.OrgType.Type),
			strings.Join(lead.BestFit, "|"),
			fmt.Sprintf("%.2f", lead.DataQuality),
			lead.Error,
		}
		for _, p := range productOrder {
			ps := lead.Scores[p]
			row = append(row, fmt.Sprintf("%.1f", ps.Score), string(ps.Tier))
		}
		if err := writer.Write(row); err != nil {
			return eris.Wrapf(err, "leads: write row %s", lead.Lead.ID)
		}
	}

	writer.Flush()
	return eris.Wrap(writer.Error(), "leads: flush")
}
