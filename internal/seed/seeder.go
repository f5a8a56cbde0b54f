package seed

import (
	"fmt"
	"log"

	"tegridy/internal/models"

	"gorm.io/gorm"
)

// curatedEpisodes is the fixed catalog every seeded database starts from.
// Titles double as slug sources, so they must stay unique.
var curatedEpisodes = []struct {
	Title  string
	Season int
	Number int
}{
	{"Scott Tenorman Must Die", 5, 4},
	{"Butters' Very Own Episode", 5, 14},
	{"Casa Bonita", 7, 11},
	{"Good Times with Weapons", 8, 1},
	{"AWESOM-O", 8, 5},
	{"Woodland Critter Christmas", 8, 14},
	{"The Death of Eric Cartman", 9, 6},
	{"Trapped in the Closet", 9, 12},
	{"Make Love, Not Warcraft", 10, 8},
	{"Imaginationland", 11, 10},
	{"Guitar Queer-O", 11, 13},
	{"Margaritaville", 13, 3},
	{"You're Getting Old", 15, 7},
	{"Tegridy Farms", 22, 4},
}

var curatedCharacters = []string{
	"Eric Cartman",
	"Stan Marsh",
	"Kyle Broflovski",
	"Kenny McCormick",
	"Butters Stotch",
	"Randy Marsh",
	"Mr. Garrison",
	"Chef",
	"Wendy Testaburger",
	"Jimmy Valmer",
	"Timmy Burch",
	"Towelie",
}

// Seeder orchestrates demo-data generation on top of the Factory.
type Seeder struct {
	db      *gorm.DB
	factory *Factory
}

// NewSeeder creates a Seeder with default options.
func NewSeeder(db *gorm.DB) *Seeder {
	return NewSeederWithOptions(db, SeedOptions{})
}

// NewSeederWithOptions creates a Seeder with explicit factory options.
func NewSeederWithOptions(db *gorm.DB, opts SeedOptions) *Seeder {
	return &Seeder{db: db, factory: NewFactory(db, opts)}
}

// ClearAll wipes every seeded table. Children go first so the delete order
// never trips a foreign key.
func (s *Seeder) ClearAll() error {
	log.Println("Clearing existing data...")
	for _, model := range []any{
		&models.Vote{},
		&models.Comment{},
		&models.Character{},
		&models.Episode{},
		&models.User{},
	} {
		if err := s.db.Unscoped().Where("1 = 1").Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clear %T: %w", model, err)
		}
	}
	return nil
}

// SeedCatalog inserts the curated episode and character catalog.
func (s *Seeder) SeedCatalog() ([]*models.Episode, []*models.Character, error) {
	episodes := make([]*models.Episode, 0, len(curatedEpisodes))
	for _, e := range curatedEpisodes {
		episode, err := s.factory.CreateEpisode(e.Title, e.Season, e.Number)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to seed episode %q: %w", e.Title, err)
		}
		episodes = append(episodes, episode)
	}

	characters := make([]*models.Character, 0, len(curatedCharacters))
	for _, name := range curatedCharacters {
		character, err := s.factory.CreateCharacter(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to seed character %q: %w", name, err)
		}
		characters = append(characters, character)
	}

	log.Printf("Seeded %d episodes and %d characters", len(episodes), len(characters))
	return episodes, characters, nil
}

// SeedMembers creates n fake members.
func (s *Seeder) SeedMembers(n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		user, err := s.factory.CreateUser()
		if err != nil {
			return nil, fmt.Errorf("failed to seed user %d: %w", i, err)
		}
		users = append(users, user)
	}
	log.Printf("Seeded %d users", len(users))
	return users, nil
}

// SeedDiscussions populates comment threads on every target: a handful of
// root comments each, reply chains hanging off random existing comments,
// and a spread of votes. Vote pairs are unique per (user, comment).
func (s *Seeder) SeedDiscussions(users []*models.User, episodes []*models.Episode, characters []*models.Character, rootsPerTarget int) error {
	if len(users) == 0 {
		return fmt.Errorf("cannot seed discussions without users")
	}

	type target struct {
		kind models.TargetKind
		id   uint
	}
	targets := make([]target, 0, len(episodes)+len(characters))
	for _, e := range episodes {
		targets = append(targets, target{models.TargetEpisode, e.ID})
	}
	for _, c := range characters {
		targets = append(targets, target{models.TargetCharacter, c.ID})
	}

	r := s.factory.rand
	totalComments := 0
	totalVotes := 0

	for _, tgt := range targets {
		thread := make([]*models.Comment, 0, rootsPerTarget*3)

		for i := 0; i < rootsPerTarget; i++ {
			author := users[r.Intn(len(users))]
			root, err := s.factory.CreateComment(author, tgt.kind, tgt.id, nil)
			if err != nil {
				return fmt.Errorf("failed to seed comment: %w", err)
			}
			thread = append(thread, root)
		}

		// Replies attach to any existing comment in the thread, which
		// naturally produces a mix of shallow and deep chains.
		replies := rootsPerTarget * 2
		for i := 0; i < replies; i++ {
			parent := thread[r.Intn(len(thread))]
			author := users[r.Intn(len(users))]
			reply, err := s.factory.CreateComment(author, tgt.kind, tgt.id, parent)
			if err != nil {
				return fmt.Errorf("failed to seed reply: %w", err)
			}
			thread = append(thread, reply)
		}
		totalComments += len(thread)

		for _, comment := range thread {
			voters := r.Intn(len(users) + 1)
			for v := 0; v < voters; v++ {
				voteType := models.VoteLike
				if r.Intn(4) == 0 {
					voteType = models.VoteDislike
				}
				if err := s.factory.CreateVote(users[r.Intn(len(users))], comment, voteType); err != nil {
					return fmt.Errorf("failed to seed vote: %w", err)
				}
				totalVotes++
			}
		}
	}

	log.Printf("Seeded %d comments and %d votes across %d targets", totalComments, totalVotes, len(targets))
	return nil
}

// Run executes the full default seeding pipeline.
func (s *Seeder) Run(numUsers, rootsPerTarget int, clean bool) error {
	if clean {
		if err := s.ClearAll(); err != nil {
			return err
		}
	}

	episodes, characters, err := s.SeedCatalog()
	if err != nil {
		return err
	}
	users, err := s.SeedMembers(numUsers)
	if err != nil {
		return err
	}
	return s.SeedDiscussions(users, episodes, characters, rootsPerTarget)
}
