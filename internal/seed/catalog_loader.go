package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"medcanna/m/domain"
	"medcanna/m/internal/products"
)

// Item is one catalog entry in a seed file.
type Item struct {
	Name         string          `yaml:"name"`
	Category     string          `yaml:"category"`
	Price        decimal.Decimal `yaml:"price"`
	Supplier     string          `yaml:"supplier"`
	MinimumStock int64           `yaml:"minimum_stock"`
	InitialStock int64           `yaml:"initial_stock"`
}

type fixtureFile struct {
	Products []Item `yaml:"products"`
}

// LoadCatalog ingests a CSV or YAML product file, skipping products whose
// name already exists. Opening stock goes through the ledger.
func LoadCatalog(ctx context.Context, svc *products.Service, path string) (int, error) {
	var (
		items []Item
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		items, err = readYAML(path)
	default:
		items, err = readCSV(path)
	}
	if err != nil {
		return 0, err
	}

	rows := 0
	for _, item := range items {
		if _, err := svc.FindByName(ctx, item.Name); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return rows, err
		}
		_, err := svc.Create(ctx, products.CreateRequest{
			Name:         item.Name,
			Category:     item.Category,
			Supplier:     item.Supplier,
			Price:        item.Price,
			MinimumStock: item.MinimumStock,
			InitialStock: item.InitialStock,
		})
		if err != nil {
			slog.Warn("unable to seed product", "name", item.Name, "error", err)
			continue
		}
		rows++
	}
	slog.Info("seeded product catalog", "path", path, "rows", rows)
	return rows, nil
}

func readYAML(path string) ([]Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var f fixtureFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return f.Products, nil
}

// readCSV expects the header name,category,price,supplier,minimum_stock,initial_stock.
func readCSV(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}

	var items []Item
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("unable to read catalog row", "error", err)
			continue
		}
		if len(record) < 6 {
			continue
		}
		name := strings.TrimSpace(record[0])
		if name == "" {
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(record[2]))
		if err != nil {
			slog.Warn("invalid price in catalog row", "name", name, "value", record[2])
			continue
		}
		minimum, err1 := strconv.ParseInt(strings.TrimSpace(record[4]), 10, 64)
		initial, err2 := strconv.ParseInt(strings.TrimSpace(record[5]), 10, 64)
		if err1 != nil || err2 != nil {
			slog.Warn("invalid stock values in catalog row", "name", name)
			continue
		}
		items = append(items, Item{
			Name:         name,
			Category:     strings.TrimSpace(record[1]),
			Price:        price,
			Supplier:     strings.TrimSpace(record[3]),
			MinimumStock: minimum,
			InitialStock: initial,
		})
	}
	return items, nil
}
