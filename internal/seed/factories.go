// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"tegridy/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedOptions tunes how the factory generates data.
type SeedOptions struct {
	// SkipBcrypt stores plaintext passwords. Dev fast mode only.
	SkipBcrypt bool
	// MaxDays spreads generated created_at timestamps over this many days.
	MaxDays int
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts SeedOptions
	rand *rand.Rand
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts SeedOptions) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	if opts.MaxDays <= 0 {
		opts.MaxDays = 90
	}
	// #nosec G404: acceptable for seeding
	return &Factory{db: db, opts: opts, rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// pastTime returns a timestamp spread over the configured window so threads
// do not all appear to be written in the same second.
func (f *Factory) pastTime() time.Time {
	daysBack := f.rand.Intn(f.opts.MaxDays)
	hoursBack := f.rand.Intn(24)
	minsBack := f.rand.Intn(60)
	return time.Now().Add(-time.Duration(daysBack)*24*time.Hour -
		time.Duration(hoursBack)*time.Hour - time.Duration(minsBack)*time.Minute)
}

// CreateUser constructs and persists a sample `models.User`.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	user := &models.User{
		Username: gofakeit.Username() + fmt.Sprintf("%d", gofakeit.Number(100, 999)),
		Email:    gofakeit.Email(),
		Avatar:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
	}

	if f.opts.SkipBcrypt {
		user.Password = "password123"
	} else {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		user.Password = string(hashedPassword)
	}

	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateEpisode persists an episode, deriving the slug from the title when
// no override sets one.
func (f *Factory) CreateEpisode(title string, season, number int, overrides ...func(*models.Episode)) (*models.Episode, error) {
	episode := &models.Episode{
		Slug:     Slugify(title),
		Title:    title,
		Season:   season,
		Number:   number,
		Synopsis: gofakeit.Paragraph(1, 3, 8, " "),
		VideoURL: fmt.Sprintf("https://cdn.tegridy.example/episodes/s%02de%02d.m3u8", season, number),
		AirDate:  f.pastTime(),
	}

	for _, override := range overrides {
		override(episode)
	}

	if err := f.db.Create(episode).Error; err != nil {
		return nil, err
	}
	return episode, nil
}

// CreateCharacter persists a character profile.
func (f *Factory) CreateCharacter(name string, overrides ...func(*models.Character)) (*models.Character, error) {
	character := &models.Character{
		Slug:     Slugify(name),
		Name:     name,
		Bio:      gofakeit.Paragraph(1, 2, 10, " "),
		ImageURL: fmt.Sprintf("https://cdn.tegridy.example/characters/%s.webp", Slugify(name)),
	}

	for _, override := range overrides {
		override(character)
	}

	if err := f.db.Create(character).Error; err != nil {
		return nil, err
	}
	return character, nil
}

// CreateComment persists a comment from `user` on the given target. Pass a
// parent to create a reply in the parent's thread.
func (f *Factory) CreateComment(user *models.User, kind models.TargetKind, targetID uint, parent *models.Comment, overrides ...func(*models.Comment)) (*models.Comment, error) {
	comment := &models.Comment{
		TargetKind: kind,
		TargetID:   targetID,
		Content:    gofakeit.Sentence(6 + f.rand.Intn(14)),
		UserID:     user.ID,
		CreatedAt:  f.pastTime(),
	}
	if parent != nil {
		comment.ParentID = &parent.ID
		// Replies must postdate their parent.
		if !comment.CreatedAt.After(parent.CreatedAt) {
			comment.CreatedAt = parent.CreatedAt.Add(time.Duration(1+f.rand.Intn(120)) * time.Minute)
		}
	}

	for _, override := range overrides {
		override(comment)
	}

	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateVote persists a reaction from `user` on `comment`. Duplicate pairs
// are absorbed by the unique index rather than erroring.
func (f *Factory) CreateVote(user *models.User, comment *models.Comment, voteType models.VoteType) error {
	vote := &models.Vote{
		UserID:    user.ID,
		CommentID: comment.ID,
		Type:      voteType,
	}
	return f.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "comment_id"}},
		DoNothing: true,
	}).Create(vote).Error
}

// Slugify lowercases a title and collapses everything outside [a-z0-9] into
// single hyphens, matching the slug validation rules.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
