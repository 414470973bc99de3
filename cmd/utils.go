package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"oracle-broker/internal/database"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// ParseGasBudgets parses a comma-separated "model=gasLimit" list, e.g.
// "11=5000000,12=3000000".
func ParseGasBudgets(budgetList string) (map[uint64]uint64, error) {
	budgets := make(map[uint64]uint64)
	for _, entry := range strings.Split(budgetList, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		model, limit, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("invalid gas budget entry '%s', expected model=gasLimit", entry)
		}

		modelId, err := strconv.ParseUint(strings.TrimSpace(model), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid model id in gas budget entry '%s': %w", entry, err)
		}
		gasLimit, err := strconv.ParseUint(strings.TrimSpace(limit), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid gas limit in gas budget entry '%s': %w", entry, err)
		}

		budgets[modelId] = gasLimit
	}
	return budgets, nil
}

// SeedGasBudgets ensures every configured model has a gas budget entry without
// overwriting values an administrator already changed.
func SeedGasBudgets(ctx context.Context, db *gorm.DB, budgetList string) error {
	budgets, err := ParseGasBudgets(budgetList)
	if err != nil {
		return err
	}

	for modelId, gasLimit := range budgets {
		if err := database.SeedGasPolicy(ctx, db, modelId, gasLimit); err != nil {
			return fmt.Errorf("error seeding gas budget for model %d: %w", modelId, err)
		}
	}
	return nil
}
