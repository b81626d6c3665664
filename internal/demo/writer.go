package demo

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/askdb/askdb/internal/ingest"
)

// WriteCSV writes the dataset to dir as the three production-shaped CSV
// files and returns a table-to-path map ready to hand to the loader.
func WriteCSV(dir string, ds Dataset) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create demo dir: %w", err)
	}

	eligibility := [][]string{{"eligibility_datetime_utc", "item_id", "eligibility", "message"}}
	for _, row := range ds.Eligibility {
		eligibility = append(eligibility, []string{
			row.CheckedAtUTC,
			strconv.Itoa(row.ItemID),
			boolText(row.Eligible),
			row.Message,
		})
	}

	totalSales := [][]string{{"date", "item_id", "total_sales", "total_units_ordered"}}
	for _, row := range ds.TotalSales {
		totalSales = append(totalSales, []string{
			row.Date,
			strconv.Itoa(row.ItemID),
			floatText(row.TotalSales),
			strconv.Itoa(row.TotalUnitsOrdered),
		})
	}

	adSales := [][]string{{"date", "item_id", "ad_sales", "impressions", "ad_spend", "clicks", "units_sold"}}
	for _, row := range ds.AdSales {
		adSales = append(adSales, []string{
			row.Date,
			strconv.Itoa(row.ItemID),
			floatText(row.AdSales),
			strconv.Itoa(row.Impressions),
			floatText(row.AdSpend),
			strconv.Itoa(row.Clicks),
			strconv.Itoa(row.UnitsSold),
		})
	}

	files := map[string][][]string{
		ingest.TableEligibility: eligibility,
		ingest.TableTotalSales:  totalSales,
		ingest.TableAdSales:     adSales,
	}
	paths := make(map[string]string, len(files))
	for table, records := range files {
		path := filepath.Join(dir, table+".csv")
		if err := writeRecords(path, records); err != nil {
			return nil, err
		}
		paths[table] = path
	}
	return paths, nil
}

func writeRecords(path string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	writer := csv.NewWriter(file)
	if err := writer.WriteAll(records); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func boolText(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func floatText(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
