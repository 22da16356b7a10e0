// seed-demo loads a small demo catalog (one pharmacy, two branches, a few
// drugs with stock) and prints tokens for a cashier and a customer.
// Run it after cmd/migrate against a development database.
//
// Usage: go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	webAdapter "pharmacy-retail/internal/adapters/web"
	"pharmacy-retail/internal/core"
	"pharmacy-retail/internal/db"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	log.Println("Restoring pharmacy and branches...")
	_, err = tx.Exec(ctx, `
		INSERT INTO pharmacies (id, name) VALUES (1, 'Demo Pharmacy')
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name;

		INSERT INTO branches (id, pharmacy_id, name, address) VALUES
		    (1, 1, 'Central', '1 Main Street'),
		    (2, 1, 'Riverside', '22 River Road')
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address;
	`)
	if err != nil {
		log.Fatalf("Failed to restore branches: %v", err)
	}

	log.Println("Restoring drugs and variants...")
	_, err = tx.Exec(ctx, `
		INSERT INTO drugs (id, name, price) VALUES
		    (1, 'Paracetamol', 2.50),
		    (2, 'Ibuprofen',   3.75),
		    (3, 'Amoxicillin', 8.20)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, is_active = true;

		INSERT INTO drug_variants (id, drug_id, name, sku, price) VALUES
		    (1, 1, '500mg x 20', 'PARA-500-20', 2.50),
		    (2, 1, '1g x 10',    'PARA-1000-10', 3.10),
		    (3, 3, '250mg syrup','AMOX-250-SYR', 9.90)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, sku = EXCLUDED.sku, price = EXCLUDED.price, is_active = true;
	`)
	if err != nil {
		log.Fatalf("Failed to restore drugs: %v", err)
	}

	log.Println("Restoring stock...")
	_, err = tx.Exec(ctx, `
		DELETE FROM inventories WHERE branch_id IN (1, 2);

		INSERT INTO inventories (branch_id, drug_id, drug_variant_id, quantity, reorder_level) VALUES
		    (1, 1, NULL, 100, 10),
		    (1, 1, 1,    40,  5),
		    (1, 1, 2,    15,  5),
		    (1, 2, NULL, 60,  10),
		    (1, 3, 3,    8,   10),
		    (2, 1, NULL, 25,  10),
		    (2, 2, NULL, 5,   10);
	`)
	if err != nil {
		log.Fatalf("Failed to restore stock: %v", err)
	}

	log.Println("Resetting sequences...")
	_, err = tx.Exec(ctx, `
		SELECT setval('pharmacies_id_seq', (SELECT MAX(id) FROM pharmacies));
		SELECT setval('branches_id_seq', (SELECT MAX(id) FROM branches));
		SELECT setval('drugs_id_seq', (SELECT MAX(id) FROM drugs));
		SELECT setval('drug_variants_id_seq', (SELECT MAX(id) FROM drug_variants));
	`)
	if err != nil {
		log.Fatalf("Failed to reset sequences: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}
	log.Println("Demo data restored.")

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Println("JWT_SECRET not set, skipping demo tokens.")
		return
	}
	branchID, pharmacyID := int64(1), int64(1)
	demo := []core.Principal{
		{ID: 100, Role: core.RoleCashier, BranchID: &branchID, PharmacyID: &pharmacyID},
		{ID: 200, Role: core.RoleUser},
	}
	for _, p := range demo {
		token, err := webAdapter.SignToken(secret, p, 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to sign token: %v", err)
		}
		fmt.Printf("%s (user %d): %s\n", p.Role, p.ID, token)
	}
}
