package seed

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"pharmacare/m/domain"
	"pharmacare/m/internal/store"
)

// LoadCatalog ingests a medicine catalog CSV (name, manufacturer,
// warehouse) into the medicines collection, skipping names already
// present case-insensitively. Seeded medicines start with no batches, so
// their stock is zero until inventory is received.
func LoadCatalog(ctx context.Context, st *store.Store, csvPath string, log *zap.Logger) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Warn("unable to load medicine catalog", zap.String("path", csvPath), zap.Error(err))
		return
	}
	defer file.Close()

	existing, err := st.GetMedicines(ctx)
	if err != nil {
		log.Warn("unable to read existing medicines", zap.Error(err))
		return
	}
	seen := make(map[string]bool, len(existing))
	for _, med := range existing {
		seen[strings.ToLower(med.Name)] = true
	}

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Warn("unable to read catalog header", zap.Error(err))
		return
	}

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn("unable to read catalog row", zap.Error(err))
			continue
		}
		if len(record) < 2 {
			continue
		}
		name := strings.TrimSpace(record[0])
		manufacturer := strings.TrimSpace(record[1])
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}

		warehouse := domain.MainWarehouse
		if len(record) > 2 && domain.Warehouse(strings.TrimSpace(record[2])).IsValid() {
			warehouse = domain.Warehouse(strings.TrimSpace(record[2]))
		}

		med := domain.Medicine{
			ID:           domain.NewChildID("med"),
			Name:         name,
			Manufacturer: manufacturer,
			Warehouse:    warehouse,
			Batches:      []domain.Batch{},
		}
		if err := st.AddMedicine(ctx, med); err != nil {
			log.Warn("unable to insert catalog medicine", zap.String("name", name), zap.Error(err))
			continue
		}
		seen[strings.ToLower(name)] = true
		rows++
	}

	log.Info("seeded medicine catalog", zap.Int("rows", rows))
}
