// Command seed populates the database with demo users, channels and emotes.
package main

import (
	"flag"
	"log"

	"glimmer/internal/config"
	"glimmer/internal/database"
	"glimmer/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	numChannels := flag.Int("channels", 8, "Number of channels to create")
	flag.Parse()

	log.Println("Database Seeder")
	log.Printf("Target: %d users, %d channels\n", *numUsers, *numChannels)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if err := seed.Demo(db, seed.Options{NumUsers: *numUsers, NumChannels: *numChannels}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Println("Seeding complete")
}
