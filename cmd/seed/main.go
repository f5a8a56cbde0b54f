// Command main runs the database seeder for Tegridy.
package main

import (
	"flag"
	"log"

	"tegridy/internal/config"
	"tegridy/internal/database"
	"tegridy/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	rootsPerTarget := flag.Int("roots", 4, "Top-level comments per episode/character")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fastMode := flag.Bool("fast", false, "Skip bcrypt hashing (dev only)")
	flag.Parse()

	log.Println("Database Seeder")
	log.Println("===============")
	log.Printf("Target: %d users, %d roots per target, clean=%v\n", *numUsers, *rootsPerTarget, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeederWithOptions(db, seed.SeedOptions{SkipBcrypt: *fastMode})
	if err := s.Run(*numUsers, *rootsPerTarget, *shouldClean); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("All done! Your database is now populated with test data.")
	log.Println("All seeded users have the password: password123")
}
